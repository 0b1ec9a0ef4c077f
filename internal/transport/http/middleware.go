package http

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

const (
	SessionName = "tileworld"
	sessionKey  = "token"
	userKey     = "user"
)

// TokenFromRequest looks for a bearer token in the Authorization header,
// the token query parameter and finally the cookie session.
func TokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	if tok, ok := sessions.Default(c).Get(sessionKey).(string); ok {
		return tok
	}
	return ""
}

type Authenticator struct {
	Tokens core.TokenVerifier
	Users  core.UserStore
}

// Optional attaches the caller to the context when a valid token is present.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if u := a.resolve(c); u != nil {
			c.Set(userKey, u)
		}
		c.Next()
	}
}

// Required rejects requests without a valid token.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := a.resolve(c)
		if u == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// Developer must run after Required.
func (a *Authenticator) Developer() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil || !u.IsDeveloper {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "developer access required"})
			return
		}
		c.Next()
	}
}

func (a *Authenticator) resolve(c *gin.Context) *domain.User {
	tok := TokenFromRequest(c)
	if tok == "" {
		return nil
	}
	uid, err := a.Tokens.Verify(tok)
	if err != nil {
		return nil
	}
	u, err := a.Users.FindUser(c.Request.Context(), uid)
	if err != nil {
		return nil
	}
	return u
}

// CurrentUser returns the caller set by the auth middleware, or nil.
func CurrentUser(c *gin.Context) *domain.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}
