package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Harsh4r0ra/chat-cli/internal/auth"
	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler groups the REST handlers. Services are injected.
type Handler struct {
	provider *auth.Provider
	profiles *service.ProfileService
	admins   *service.AdminResolver
	console  *service.AdminConsole
}

func NewHandler(provider *auth.Provider, store backend.Store) *Handler {
	return &Handler{
		provider: provider,
		profiles: service.NewProfileService(store),
		admins:   service.NewAdminResolver(store),
		console:  service.NewAdminConsole(store),
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) bindCredentials(c *gin.Context) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return req, false
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return req, false
	}
	return req, true
}

func (h *Handler) sessionResponse(c *gin.Context, sess *backend.Session) {
	if _, err := h.profiles.Ensure(c.Request.Context(), sess); err != nil {
		log.Warn().Err(err).Str("user", sess.UserID).Msg("ensure profile")
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  sess.AccessToken,
		"refresh_token": sess.RefreshToken,
		"expires_at":    sess.ExpiresAt,
		"user":          gin.H{"id": sess.UserID, "email": sess.Email, "username": sess.Username()},
	})
}

// Register creates an account and signs it in.
func (h *Handler) Register(c *gin.Context) {
	req, ok := h.bindCredentials(c)
	if !ok {
		return
	}
	sess, err := h.provider.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var cred *auth.CredentialError
		switch {
		case errors.As(err, &cred):
			c.JSON(http.StatusBadRequest, gin.H{"error": cred.Error()})
		case errors.Is(err, auth.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			log.Error().Err(err).Str("email", req.Email).Msg("register")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		}
		return
	}
	h.sessionResponse(c, sess)
}

func (h *Handler) Login(c *gin.Context) {
	req, ok := h.bindCredentials(c)
	if !ok {
		return
	}
	sess, err := h.provider.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("email", req.Email).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	h.sessionResponse(c, sess)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates the refresh token and issues a new access token.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	sess, err := h.provider.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	h.sessionResponse(c, sess)
}

// Logout revokes the refresh token given in the body, if any.
func (h *Handler) Logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	sess := *auth.GetSession(c)
	sess.RefreshToken = req.RefreshToken
	if err := h.provider.SignOut(c.Request.Context(), &sess); err != nil {
		log.Error().Err(err).Str("user", sess.UserID).Msg("logout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RequireAdmin rejects sessions whose profile is not an admin.
func (h *Handler) RequireAdmin(c *gin.Context) {
	if !h.admins.IsAdmin(c.Request.Context(), auth.GetUserID(c)) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": service.ErrNotAdmin.Error()})
		return
	}
	c.Next()
}

// fail writes err with the status its kind maps to.
func fail(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, service.ErrConfirmationRequired):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrProtectedRoom):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrRoomNotFound), errors.Is(err, service.ErrUserNotFound), errors.Is(err, backend.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyAdmin), errors.Is(err, backend.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("op", op).Msg("admin request")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) Stats(c *gin.Context) {
	st, err := h.console.Stats(c.Request.Context())
	if err != nil {
		fail(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.console.ListProfiles(c.Request.Context())
	if err != nil {
		fail(c, "list users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

type moderationRequest struct {
	Reason  string `json:"reason"`
	Seconds int    `json:"seconds"`
}

// Moderate applies one of block, unblock, timeout or untimeout to :id.
func (h *Handler) Moderate(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req moderationRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
				return
			}
		}
		ctx := c.Request.Context()
		id := c.Param("id")
		var err error
		var out any
		switch action {
		case "block":
			out, err = h.console.Block(ctx, id, req.Reason)
		case "unblock":
			out, err = h.console.Unblock(ctx, id)
		case "timeout":
			out, err = h.console.Timeout(ctx, id, req.Seconds, req.Reason)
		case "untimeout":
			out, err = h.console.RemoveTimeout(ctx, id)
		}
		if err != nil {
			fail(c, action, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.console.ListRooms(c.Request.Context())
	if err != nil {
		fail(c, "list rooms", err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) CreateRoom(c *gin.Context) {
	var spec service.RoomSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	room, err := h.console.CreateRoom(c.Request.Context(), spec, auth.GetUserID(c))
	if err != nil {
		fail(c, "create room", err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// DeleteRoom needs ?confirm=true.
func (h *Handler) DeleteRoom(c *gin.Context) {
	confirmed := c.Query("confirm") == "true"
	if err := h.console.DeleteRoom(c.Request.Context(), c.Param("name"), confirmed); err != nil {
		fail(c, "delete room", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type grantRequest struct {
	Username string `json:"username"`
	Read     bool   `json:"read"`
	Write    bool   `json:"write"`
}

func (h *Handler) GrantAccess(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	perm, err := h.console.GrantAccess(c.Request.Context(), strings.TrimSpace(req.Username), c.Param("name"), req.Read, req.Write)
	if err != nil {
		fail(c, "grant", err)
		return
	}
	c.JSON(http.StatusOK, perm)
}

func (h *Handler) RevokeAccess(c *gin.Context) {
	if err := h.console.RevokeAccess(c.Request.Context(), c.Param("username"), c.Param("name")); err != nil {
		fail(c, "revoke", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MakeAdmin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	p, err := h.console.MakeAdmin(c.Request.Context(), req.Username)
	if err != nil {
		fail(c, "make admin", err)
		return
	}
	c.JSON(http.StatusOK, p)
}
