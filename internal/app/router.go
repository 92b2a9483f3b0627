package app

import (
	"lingo_edu_backend/docs"
	"lingo_edu_backend/internal/config"
	"lingo_edu_backend/internal/middleware"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	api.GET("/health", c.health.HealthCheck)

	// 1. 浏览类：可选认证，教师登录后可看到未发布的测试和答案
	public := api.Group("/online-tests")
	public.Use(middleware.TryAuthMiddleware(&cfg.JWT))
	{
		public.GET("", c.test.ListTests)
		public.GET("/:id", c.test.GetTest)
		public.GET("/:id/status", c.test.GetStatus)
		public.GET("/:id/questions", c.question.ListQuestions)
	}

	// 2. 作答：必须登录
	authGroup := api.Group("")
	authGroup.Use(middleware.AuthMiddleware(&cfg.JWT))
	{
		a.registerStudentRoutes(authGroup, c)

		teacher := authGroup.Group("")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		a.registerTeacherRoutes(teacher, c)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/online-tests/:id/attempts", c.attempt.ListAttempts)
	rg.POST("/online-tests/:id/attempts", c.attempt.StartAttempt)

	attempts := rg.Group("/attempts/:id")
	{
		attempts.GET("", c.attempt.GetAttempt)
		attempts.PUT("/answers/:questionId", c.attempt.RecordAnswer)
		attempts.POST("/complete", c.attempt.CompleteAttempt)
		attempts.GET("/grade", c.attempt.GradeAttempt)
		attempts.GET("/navigation", c.attempt.Navigation)
	}
}

func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	tests := rg.Group("/online-tests")
	{
		tests.POST("", c.test.CreateTest)
		tests.POST("/generate", c.test.Generate)
		tests.PATCH("/:id", c.test.UpdateTest)
		tests.DELETE("/:id", c.test.DeleteTest)

		tests.POST("/:id/questions", c.question.AddQuestion)
		tests.PATCH("/:id/questions/:questionId", c.question.UpdateQuestion)
		tests.DELETE("/:id/questions/:questionId", c.question.DeleteQuestion)
	}

	rg.POST("/attempts/:id/answers/:questionId/grade", c.attempt.GradeAnswer)
	rg.POST("/media/upload", c.media.Upload)
}
