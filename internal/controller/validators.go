package controller

import (
	"lingo_edu_backend/internal/model"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators 为 gin 绑定注册枚举校验规则
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("testtype", func(fl validator.FieldLevel) bool {
			return model.TestType(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
			return model.Difficulty(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("sectiontype", func(fl validator.FieldLevel) bool {
			return model.SectionType(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("questiontype", func(fl validator.FieldLevel) bool {
			return model.QuestionType(fl.Field().String()).Valid()
		})
	})
}
