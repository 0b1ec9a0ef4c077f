package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/dkeye/tileworld/internal/auth"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/store/memory"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	for _, u := range []*domain.User{
		{ID: "alice", Username: "alice", Email: "alice@example.com"},
		{ID: "dev", Username: "dev", Email: "dev@example.com", IsDeveloper: true},
	} {
		if err := store.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	tokens, err := auth.NewTokenService("mw-secret", "tileworld-test", time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	a := &Authenticator{Tokens: tokens, Users: store}

	r := gin.New()
	r.Use(sessions.Sessions(SessionName, cookie.NewStore([]byte("mw-secret"))))
	whoami := func(c *gin.Context) {
		if u := CurrentUser(c); u != nil {
			c.String(http.StatusOK, string(u.ID))
			return
		}
		c.String(http.StatusOK, "anonymous")
	}
	r.GET("/optional", a.Optional(), whoami)
	r.GET("/required", a.Required(), whoami)
	r.GET("/developer", a.Required(), a.Developer(), whoami)
	return r, tokens
}

func TestAuthMiddleware(t *testing.T) {
	r, tokens := newAuthRouter(t)
	alice, _ := tokens.Issue("alice")
	dev, _ := tokens.Issue("dev")
	ghost, _ := tokens.Issue("ghost")

	tests := []struct {
		name     string
		path     string
		header   string
		query    string
		wantCode int
		wantBody string
	}{
		{"optional anonymous", "/optional", "", "", http.StatusOK, "anonymous"},
		{"optional bad token", "/optional", "Bearer nope", "", http.StatusOK, "anonymous"},
		{"optional bearer", "/optional", "Bearer " + alice, "", http.StatusOK, "alice"},
		{"required query token", "/required", "", alice, http.StatusOK, "alice"},
		{"required missing", "/required", "", "", http.StatusUnauthorized, ""},
		{"required unknown user", "/required", "Bearer " + ghost, "", http.StatusUnauthorized, ""},
		{"developer as player", "/developer", "Bearer " + alice, "", http.StatusForbidden, ""},
		{"developer", "/developer", "Bearer " + dev, "", http.StatusOK, "dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if tt.query != "" {
				path += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Fatalf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}
