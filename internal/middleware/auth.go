package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/orgmgr/orgmgr/internal/config"
	"github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/httputil"
	"github.com/orgmgr/orgmgr/pkg/logger"
)

// Claims is the accepted JWT payload for HS256 tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// Auth validates the Authorization header. A static bearer token is compared
// in constant time; when a JWT secret is configured, HS256-signed tokens are
// accepted as well. With auth disabled every request passes through.
func Auth(cfg config.AuthConfig, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Disable {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, log, errors.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, log, errors.Unauthorized("invalid Authorization header format"))
			return
		}
		token := parts[1]

		if cfg.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) == 1 {
			c.Next()
			return
		}
		if cfg.JWTSecret != "" {
			if err := validateJWT(token, cfg.JWTSecret); err == nil {
				c.Next()
				return
			}
		}

		abortUnauthorized(c, log, errors.Forbidden("invalid token"))
	}
}

func validateJWT(tokenString, secret string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Forbidden("unexpected signing method").WithDetails("method", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return errors.Forbidden("invalid token")
	}
	if !token.Valid {
		return errors.Forbidden("invalid token")
	}
	return nil
}

func abortUnauthorized(c *gin.Context, log *logger.Logger, err error) {
	log.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}).Warn("authentication failed")
	httputil.AbortWithError(c, err)
}
