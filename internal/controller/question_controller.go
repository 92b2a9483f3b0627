package controller

import (
	"lingo_edu_backend/internal/service"
	"lingo_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuestionController struct {
	Service *service.QuestionService
}

func NewQuestionController(svc *service.QuestionService) *QuestionController {
	return &QuestionController{Service: svc}
}

// @Summary 测试题目
// @Description 按 分区 -> part 分组；只有教师能看到答案与解析
// @Tags 在线测试题目
// @Produce json
// @Param id path int true "测试ID"
// @Success 200 {object} util.Response{data=[]service.SectionView}
// @Failure 404 {object} util.Response
// @Router /api/online-tests/{id}/questions [get]
func (c *QuestionController) ListQuestions(ctx *gin.Context) {
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	sections, err := c.Service.ListQuestions(testID, principal(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sections)
}

// @Summary 添加题目
// @Tags 在线测试题目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Param body body service.QuestionReq true "题目"
// @Success 201 {object} util.Response{data=model.OnlineTestQuestion}
// @Failure 400 {object} util.Response
// @Router /api/online-tests/{id}/questions [post]
func (c *QuestionController) AddQuestion(ctx *gin.Context) {
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.QuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.Service.AddQuestion(ctx.Request.Context(), testID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// @Summary 修改题目
// @Description 已有作答的题目不能修改
// @Tags 在线测试题目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Param questionId path int true "题目ID"
// @Param body body service.UpdateQuestionReq true "更新字段"
// @Success 200 {object} util.Response{data=model.OnlineTestQuestion}
// @Failure 409 {object} util.Response
// @Router /api/online-tests/{id}/questions/{questionId} [patch]
func (c *QuestionController) UpdateQuestion(ctx *gin.Context) {
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	var req service.UpdateQuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.Service.UpdateQuestion(ctx.Request.Context(), testID, questionID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// @Summary 删除题目
// @Tags 在线测试题目
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/online-tests/{id}/questions/{questionId} [delete]
func (c *QuestionController) DeleteQuestion(ctx *gin.Context) {
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	if err := c.Service.DeleteQuestion(ctx.Request.Context(), testID, questionID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": questionID})
}
