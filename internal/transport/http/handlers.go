package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/account"
	"github.com/dkeye/tileworld/internal/app"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/world"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type Handlers struct {
	Accounts *account.Service
	Maps     *world.Service
	Metrics  *app.Metrics
	Registry *app.Registry
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.Registry.Len()})
}

func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, email and password are required"})
		return
	}
	sess, err := h.Accounts.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	remember(c, sess.Token)
	c.JSON(http.StatusCreated, gin.H{"data": sess})
}

func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
		return
	}
	sess, err := h.Accounts.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	remember(c, sess.Token)
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

func (h *Handlers) Logout(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "transport.http").Msg("clear session")
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) Me(c *gin.Context) {
	sess, err := h.Accounts.Me(c.Request.Context(), CurrentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

func (h *Handlers) ListMaps(c *gin.Context) {
	maps, err := h.Maps.List(c.Request.Context(), CurrentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": maps, "count": len(maps)})
}

func (h *Handlers) DefaultMap(c *gin.Context) {
	m, err := h.Maps.Default(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (h *Handlers) GetMap(c *gin.Context) {
	m, err := h.Maps.Get(c.Request.Context(), domain.MapID(c.Param("id")), CurrentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (h *Handlers) CreateMap(c *gin.Context) {
	var in world.CreateMapInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, width, height and tiles are required"})
		return
	}
	m, err := h.Maps.Create(c.Request.Context(), CurrentUser(c).ID, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": m})
}

func (h *Handlers) UpdateMap(c *gin.Context) {
	var in world.UpdateMapInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid map update"})
		return
	}
	m, err := h.Maps.Update(c.Request.Context(), domain.MapID(c.Param("id")), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (h *Handlers) DeleteMap(c *gin.Context) {
	res, err := h.Maps.Delete(c.Request.Context(), domain.MapID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handlers) TogglePublish(c *gin.Context) {
	m, err := h.Maps.TogglePublish(c.Request.Context(), domain.MapID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (h *Handlers) SetDefaultMap(c *gin.Context) {
	m, err := h.Maps.SetDefault(c.Request.Context(), domain.MapID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (h *Handlers) MetricsSnapshot(c *gin.Context) {
	snap := h.Metrics.Snapshot()
	snap["sessions"] = int64(h.Registry.Len())
	c.JSON(http.StatusOK, snap)
}

func remember(c *gin.Context, token string) {
	s := sessions.Default(c)
	s.Set(sessionKey, token)
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "transport.http").Msg("save session")
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPresenceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, account.ErrBadCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUsernameEmpty),
		errors.Is(err, domain.ErrUsernameTooShort),
		errors.Is(err, domain.ErrUsernameTooLong),
		errors.Is(err, domain.ErrEmailInvalid),
		errors.Is(err, account.ErrPasswordTooShort),
		errors.Is(err, domain.ErrMapNameInvalid),
		errors.Is(err, domain.ErrMapSizeInvalid),
		errors.Is(err, domain.ErrMapTilesInvalid),
		errors.Is(err, world.ErrLastMap),
		errors.Is(err, world.ErrDefaultSpawnRequired):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "transport.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
