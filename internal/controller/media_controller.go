package controller

import (
	"lingo_edu_backend/internal/service"
	"lingo_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MediaController struct {
	Service *service.MediaService
}

func NewMediaController(svc *service.MediaService) *MediaController {
	return &MediaController{Service: svc}
}

// @Summary 上传题目素材
// @Description 听力音频或题目图片
// @Tags 在线测试题目
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "音频或图片"
// @Success 201 {object} util.Response{data=service.MediaResult}
// @Failure 400 {object} util.Response
// @Router /api/media/upload [post]
func (c *MediaController) Upload(ctx *gin.Context) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}

	res, err := c.Service.Upload(ctx.Request.Context(), fh)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, res)
}
