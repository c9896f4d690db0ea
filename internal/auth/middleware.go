package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollsheet/internal/apperr"
)

const identityKey = "identity"

var (
	// ErrNoAuthorization means the request carried no Authorization header.
	ErrNoAuthorization = errors.New("authorization header missing")
	// ErrNotBearer means the header is present but holds no bearer token.
	ErrNotBearer = errors.New("authorization header is not a bearer token")
)

// Middleware enforces bearer session tokens and stores the caller's Identity.
func Middleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if errors.Is(err, ErrNotBearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
			return
		}
		identity, err := svc.Authenticate(token)
		if err != nil {
			msg := msgInvalidToken
			if e, ok := apperr.As(err); ok {
				msg = e.Message
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrNoAuthorization
	}
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return "", ErrNotBearer
	}
	token := strings.TrimSpace(header[len("bearer "):])
	if token == "" {
		return "", ErrNotBearer
	}
	return token, nil
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok && id.ID > 0
}
