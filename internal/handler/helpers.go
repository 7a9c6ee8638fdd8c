package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/ai"
	"github.com/xxxsen/clinrag/internal/middleware"
	"github.com/xxxsen/clinrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
	"github.com/xxxsen/clinrag/internal/pkg/response"
	"github.com/xxxsen/clinrag/internal/service"
)

var kindCodes = map[string]int{
	"validation":            errcode.ErrInvalid,
	"not_found":             errcode.ErrNotFound,
	"conflict":              errcode.ErrConflict,
	"unauthorized":          errcode.ErrUnauthorized,
	"too_many_requests":     errcode.ErrTooMany,
	"stream_aborted":        errcode.ErrStreamAborted,
	"upstream_timeout":      errcode.ErrUpstreamTimeout,
	"upstream_unavailable":  errcode.ErrUpstreamUnavailable,
	"upstream_bad_response": errcode.ErrUpstreamBadResponse,
	"internal":              errcode.ErrInternal,
}

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func getSession(c *gin.Context) service.Session {
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	id, _ := requestID.(string)
	return service.Session{UserID: getUserID(c), RequestID: id}
}

func badRequest(c *gin.Context, msg string) {
	response.ErrorKind(c, errcode.ErrInvalid, "validation", msg)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	kind := appErr.Kind(err)
	code := kindCodes[kind]
	msg := err.Error()
	switch {
	case errors.Is(err, ai.ErrUnavailable):
		kind, code = "upstream_unavailable", errcode.ErrAIUnavailable
	case errors.Is(err, appErr.ErrRetrieval):
		code = errcode.ErrRetrieval
	case kind == "internal":
		msg = "internal error"
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", c.Value(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.String("kind", kind),
		zap.Error(err),
	)
	response.ErrorKind(c, code, kind, msg)
}

func parsePatientID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid patient id")
		return 0, false
	}
	return id, true
}
