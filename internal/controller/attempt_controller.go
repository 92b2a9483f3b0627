package controller

import (
	"lingo_edu_backend/internal/service"
	"lingo_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Service *service.AttemptService
}

func NewAttemptController(svc *service.AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

// @Summary 开始作答
// @Tags 在线测试作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Success 201 {object} util.Response{data=model.OnlineTestAttempt}
// @Failure 409 {object} util.Response
// @Router /api/online-tests/{id}/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	attempt, err := c.Service.StartAttempt(ctx.Request.Context(), testID, principal(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

// @Summary 我的作答记录
// @Tags 在线测试作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Success 200 {object} util.Response{data=[]model.OnlineTestAttempt}
// @Router /api/online-tests/{id}/attempts [get]
func (c *AttemptController) ListAttempts(ctx *gin.Context) {
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	attempts, err := c.Service.ListAttempts(testID, principal(ctx).UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// @Summary 作答详情
// @Tags 在线测试作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptView}
// @Failure 403 {object} util.Response
// @Router /api/attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	view, err := c.Service.GetAttempt(id, principal(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 保存答案
// @Description 同一题重复提交会覆盖；传 expectedRevision 时做并发校验
// @Tags 在线测试作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param questionId path int true "题目ID"
// @Param body body service.RecordAnswerReq true "答案"
// @Success 200 {object} util.Response{data=model.OnlineTestAnswer}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/attempts/{id}/answers/{questionId} [put]
func (c *AttemptController) RecordAnswer(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	var req service.RecordAnswerReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	ans, err := c.Service.RecordAnswer(ctx.Request.Context(), id, questionID, principal(ctx), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, ans)
}

// @Summary 提交作答
// @Description 可同时提交最后一批答案；重复提交返回 409
// @Tags 在线测试作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param body body service.CompleteAttemptReq false "最后一批答案"
// @Success 200 {object} util.Response{data=service.CompleteResult}
// @Failure 409 {object} util.Response
// @Router /api/attempts/{id}/complete [post]
func (c *AttemptController) CompleteAttempt(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.CompleteAttemptReq
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	res, err := c.Service.CompleteAttempt(ctx.Request.Context(), id, principal(ctx), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 作答成绩
// @Tags 在线测试作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=service.GradeResult}
// @Router /api/attempts/{id}/grade [get]
func (c *AttemptController) GradeAttempt(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	res, err := c.Service.GradeAttempt(id, principal(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 答题导航
// @Tags 在线测试作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param current query int false "当前题号（从 1 开始）"
// @Success 200 {object} util.Response{data=service.NavigationView}
// @Router /api/attempts/{id}/navigation [get]
func (c *AttemptController) Navigation(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	current := util.ParseIntDefault(ctx.Query("current"), 0)
	view, err := c.Service.Navigation(id, principal(ctx), current)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 人工评分
// @Description 作文、口语题由教师评分
// @Tags 在线测试作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param questionId path int true "题目ID"
// @Param body body service.GradeAnswerReq true "得分与评语"
// @Success 200 {object} util.Response{data=model.OnlineTestAnswer}
// @Failure 400 {object} util.Response
// @Router /api/attempts/{id}/answers/{questionId}/grade [post]
func (c *AttemptController) GradeAnswer(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	var req service.GradeAnswerReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	ans, err := c.Service.GradeAnswer(id, questionID, principal(ctx), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, ans)
}
