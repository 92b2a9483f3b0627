package model

import (
	"time"
)

// BaseModel 所有表共用的主键与时间戳
// 测试引擎的删除均为物理删除，因此不带 DeletedAt
type BaseModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
