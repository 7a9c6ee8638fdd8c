package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/pkg/errcode"
	"github.com/xxxsen/clinrag/internal/pkg/jwt"
	"github.com/xxxsen/clinrag/internal/pkg/response"
)

// ContextUserIDKey holds the authenticated caller. Pages and history are
// scoped by it.
const ContextUserIDKey = "user_id"

var (
	errNoCredentials = errors.New("missing authorization")
	errNotBearer     = errors.New("invalid authorization")
	errTokenExpired  = errors.New("token expired")
	errTokenInvalid  = errors.New("invalid token")
)

// JWTAuth admits requests that carry a valid HS256 bearer token.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := authenticate(c.GetHeader("Authorization"), secret)
		if err != nil {
			logutil.GetLogger(c.Request.Context()).Debug("request not authenticated",
				zap.String("path", c.Request.URL.Path), zap.Error(err))
			response.ErrorKind(c, errcode.ErrUnauthorized, "unauthorized", err.Error())
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

func authenticate(header string, secret []byte) (string, error) {
	token, err := bearerToken(header)
	if err != nil {
		return "", err
	}
	claims, err := jwt.ParseToken(token, secret)
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return "", errTokenExpired
	case err != nil:
		return "", errTokenInvalid
	}
	return claims.UserID, nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errNotBearer
	}
	return token, nil
}
