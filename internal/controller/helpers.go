package controller

import (
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/service"
	"lingo_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// principal 从令牌取出调用者，匿名请求按学员处理
func principal(ctx *gin.Context) service.Principal {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		return service.Principal{Role: model.Student}
	}
	return service.Principal{UserID: user.UserID, Role: user.Role}
}

// pathID 解析路径中的数字 ID，非法时直接返回 400
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id := util.MustParseUint(ctx.Param(name))
	if id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}
