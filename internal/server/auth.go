package server

import (
	"strings"

	obscontext "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/context"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextUserIDKey = "user_id"

// RequireAuth validates the bearer token and stores the subject claim on
// the request context.
func (s *Server) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.authenticate(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, userID)
		ctx := obscontext.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authenticate(c *gin.Context) (string, error) {
	secret := strings.TrimSpace(s.cfg.AuthJWTSecret)
	if secret == "" {
		return "", ErrUnauthorized
	}

	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", ErrUnauthorized
	}
	tokenStr := strings.TrimSpace(authHeader[7:])
	if tokenStr == "" {
		return "", ErrUnauthorized
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthorized
	}

	subject, _ := claims["sub"].(string)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", ErrUnauthorized
	}
	return subject, nil
}

func authedUserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(contextUserIDKey))
}
