package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/clinrag/internal/model"
	"github.com/xxxsen/clinrag/internal/pkg/response"
	"github.com/xxxsen/clinrag/internal/service"
)

type PageHandler struct {
	pages *service.PageService
}

func NewPageHandler(pages *service.PageService) *PageHandler {
	return &PageHandler{pages: pages}
}

type createPageRequest struct {
	Query     string `json:"query"`
	PatientID *int64 `json:"patient_id"`
}

type appendRequest struct {
	Question  string `json:"question"`
	PatientID *int64 `json:"patient_id"`
}

type attachAnswerRequest struct {
	Answer    string                `json:"answer"`
	Reasoning string                `json:"reasoning"`
	Steps     []model.ReasoningStep `json:"steps"`
}

func (h *PageHandler) Create(c *gin.Context) {
	var req createPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	page, err := h.pages.Create(c.Request.Context(), getSession(c), req.Query, req.PatientID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"page_id": page.ID})
}

func (h *PageHandler) Append(c *gin.Context) {
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	page, _, err := h.pages.Append(c.Request.Context(), getSession(c), c.Param("id"), req.Question, req.PatientID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, page)
}

func (h *PageHandler) Get(c *gin.Context) {
	page, err := h.pages.Get(c.Request.Context(), getSession(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, page)
}

func (h *PageHandler) History(c *gin.Context) {
	pages, err := h.pages.ListHistory(c.Request.Context(), getSession(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"pages": pages})
}

func (h *PageHandler) AttachAnswer(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "invalid index")
		return
	}
	var req attachAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	answer := &model.Answer{Answer: req.Answer, Reasoning: req.Reasoning}
	page, err := h.pages.AttachAnswer(c.Request.Context(), getSession(c), c.Param("id"), index, answer, req.Steps)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, page)
}
