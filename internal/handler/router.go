package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/clinrag/internal/middleware"
)

type RouterDeps struct {
	Pages     *PageHandler
	Answers   *AnswerHandler
	Search    *SearchHandler
	Patients  *PatientHandler
	JWTSecret []byte
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/pages", deps.Pages.Create)
	authGroup.GET("/pages/history", deps.Pages.History)
	authGroup.GET("/pages/:id", deps.Pages.Get)
	authGroup.POST("/pages/:id/append", deps.Pages.Append)
	authGroup.PUT("/pages/:id/answers/:index", deps.Pages.AttachAnswer)

	genGroup := authGroup.Group("")
	genGroup.Use(middleware.RateLimit(deps.RateLimit))
	genGroup.POST("/answer/steps", deps.Answers.Steps)
	genGroup.POST("/answer", deps.Answers.Answer)
	genGroup.POST("/answer/stream", deps.Answers.Stream)
	genGroup.POST("/cohort_search", deps.Search.Cohort)

	authGroup.GET("/patients/summary", deps.Patients.Summary)
	authGroup.GET("/patients/:id", deps.Patients.Get)
	authGroup.GET("/patients/:id/notes/:note_id", deps.Patients.Note)
	authGroup.GET("/patients/:id/notes/:note_id/raw", deps.Patients.NoteRaw)
	genGroup.POST("/patients/:id/notes/:note_id/entities", deps.Patients.NoteEntities)
	genGroup.POST("/patients/:id/entities", deps.Patients.BatchEntities)
}
