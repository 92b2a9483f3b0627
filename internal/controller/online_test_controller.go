package controller

import (
	"lingo_edu_backend/internal/service"
	"lingo_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type OnlineTestController struct {
	Service   *service.OnlineTestService
	Generator *service.TestGeneratorService
}

func NewOnlineTestController(svc *service.OnlineTestService, generator *service.TestGeneratorService) *OnlineTestController {
	return &OnlineTestController{Service: svc, Generator: generator}
}

// @Summary 在线测试列表
// @Description 学员只能看到已发布且有题目的测试；教师可传 scope=all
// @Tags 在线测试
// @Produce json
// @Param testType query string false "TOEIC / IELTS / General / Placement"
// @Param difficulty query string false "Beginner / Intermediate / Advanced / Expert"
// @Param search query string false "标题、描述、标签模糊搜索"
// @Param sort query string false "newest / popularity / completion" default(popularity)
// @Param page query int false "页码" default(1)
// @Param pageSize query int false "每页数量" default(20)
// @Param scope query string false "published / all"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Failure 400 {object} util.Response
// @Router /api/online-tests [get]
func (c *OnlineTestController) ListTests(ctx *gin.Context) {
	var q service.ListTestsQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	page, err := c.Service.ListTests(principal(ctx), q)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, page)
}

// @Summary 在线测试详情
// @Tags 在线测试
// @Produce json
// @Param id path int true "测试ID"
// @Success 200 {object} util.Response{data=service.TestDetail}
// @Failure 404 {object} util.Response
// @Router /api/online-tests/{id} [get]
func (c *OnlineTestController) GetTest(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	detail, err := c.Service.GetTest(id, principal(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// @Summary 创建在线测试
// @Description 新建的测试默认未发布
// @Tags 在线测试
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateTestReq true "测试信息"
// @Success 201 {object} util.Response{data=model.OnlineTest}
// @Failure 400 {object} util.Response
// @Router /api/online-tests [post]
func (c *OnlineTestController) CreateTest(ctx *gin.Context) {
	var req service.CreateTestReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	test, err := c.Service.CreateTest(principal(ctx).UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, test)
}

// @Summary 更新在线测试
// @Description 部分更新；发布需要至少一道题目
// @Tags 在线测试
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Param body body service.UpdateTestReq true "更新字段"
// @Success 200 {object} util.Response{data=model.OnlineTest}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/online-tests/{id} [patch]
func (c *OnlineTestController) UpdateTest(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.UpdateTestReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	test, err := c.Service.UpdateTest(ctx.Request.Context(), id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// @Summary 删除在线测试
// @Description 级联删除题目、作答记录与答案
// @Tags 在线测试
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Success 200 {object} util.Response{data=repository.DeleteResult}
// @Failure 404 {object} util.Response
// @Router /api/online-tests/{id} [delete]
func (c *OnlineTestController) DeleteTest(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	res, err := c.Service.DeleteTest(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": res, "total": res.Total()})
}

// @Summary 测试就绪状态
// @Tags 在线测试
// @Produce json
// @Param id path int true "测试ID"
// @Success 200 {object} util.Response{data=service.TestStatus}
// @Failure 404 {object} util.Response
// @Router /api/online-tests/{id}/status [get]
func (c *OnlineTestController) GetStatus(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	status, err := c.Service.GetTestStatus(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// @Summary AI 生成测试
// @Description 调用大模型生成单选题，结果为未发布的测试
// @Tags 在线测试
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.GenerateTestReq true "生成参数"
// @Success 201 {object} util.Response{data=service.GeneratedTest}
// @Failure 400 {object} util.Response
// @Failure 500 {object} util.Response
// @Router /api/online-tests/generate [post]
func (c *OnlineTestController) Generate(ctx *gin.Context) {
	var req service.GenerateTestReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	out, err := c.Generator.Generate(ctx.Request.Context(), principal(ctx).UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, out)
}
