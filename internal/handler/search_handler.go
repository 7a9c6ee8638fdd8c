package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/clinrag/internal/pkg/response"
	"github.com/xxxsen/clinrag/internal/service"
)

type SearchHandler struct {
	retrieval *service.RetrievalService
}

func NewSearchHandler(retrieval *service.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

type cohortSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (h *SearchHandler) Cohort(c *gin.Context) {
	var req cohortSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if req.TopK < 0 {
		badRequest(c, "top_k must not be negative")
		return
	}
	set, err := h.retrieval.Retrieve(c.Request.Context(), req.Query, service.Scope{}, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, set)
}
