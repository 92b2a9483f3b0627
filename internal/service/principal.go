package service

import "lingo_edu_backend/internal/model"

// Principal 当前请求的调用者，由控制器从令牌中取出后显式传入
type Principal struct {
	UserID uint
	Role   model.UserRole
}

func (p Principal) IsStaff() bool {
	return p.Role.IsStaff()
}

// CanView 本人或教师/管理员可以查看尝试记录
func (p Principal) CanView(ownerID uint) bool {
	return p.UserID == ownerID || p.IsStaff()
}
