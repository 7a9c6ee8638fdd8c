package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

// Session carries the caller identity through every page and ask operation.
type Session struct {
	UserID    string
	RequestID string
}

func (s Session) validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return appErr.ErrUnauthorized
	}
	return nil
}

func (s Session) logger(ctx context.Context) *zap.Logger {
	return logutil.GetLogger(ctx).With(zap.String("user_id", s.UserID), zap.String("request_id", s.RequestID))
}
