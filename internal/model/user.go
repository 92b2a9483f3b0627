package model

// UserRole 鉴权令牌中携带的角色，用户本身由账号服务维护
type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// IsStaff 教师与管理员可以查看答案、预览未发布的测试
func (r UserRole) IsStaff() bool {
	return r == Teacher || r == Admin
}
