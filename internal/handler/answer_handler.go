package handler

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/pkg/response"
	"github.com/xxxsen/clinrag/internal/service"
)

type AnswerHandler struct {
	ask *service.AskService
}

func NewAnswerHandler(ask *service.AskService) *AnswerHandler {
	return &AnswerHandler{ask: ask}
}

func (h *AnswerHandler) bind(c *gin.Context) (service.AskRequest, bool) {
	var req service.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return req, false
	}
	return req, true
}

func (h *AnswerHandler) Steps(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	result, err := h.ask.GenerateSteps(c.Request.Context(), getSession(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *AnswerHandler) Answer(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	result, err := h.ask.GenerateAnswer(c.Request.Context(), getSession(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// Stream writes server-sent events until the terminal event. A client that
// disconnects cancels the request context, which stops generation.
func (h *AnswerHandler) Stream(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	stream, err := h.ask.Stream(c.Request.Context(), getSession(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(200)
	for ev := range stream.Events() {
		if err := writeEvent(c.Writer, ev); err != nil {
			logutil.GetLogger(c.Request.Context()).Warn("write stream event failed", zap.Error(err))
			return
		}
		c.Writer.Flush()
	}
}

func writeEvent(w io.Writer, ev service.Event) error {
	blob, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", blob)
	return err
}
