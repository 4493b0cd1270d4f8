package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"shopchat/internal/auth"
	"shopchat/internal/logging"
	"shopchat/internal/models"
	"shopchat/internal/service/assistant"
	"shopchat/internal/service/catalog"
	"shopchat/internal/service/chat"
	"shopchat/internal/worker"
)

// genericTurnError is the only detail a client sees when a turn fails
// unexpectedly.
const genericTurnError = "could not process your request"

// TurnSubmitter runs chat turns, one at a time per session.
type TurnSubmitter interface {
	Submit(worker.TurnRequest) (*models.ChatSession, error)
	Purge(sessionID int64)
}

// Handler wires HTTP routes to the assistant, catalog and turn workers.
type Handler struct {
	assistant *assistant.Service
	auth      *auth.Service
	catalog   *catalog.Service
	workers   TurnSubmitter
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, authService *auth.Service, catalogService *catalog.Service, workers TurnSubmitter) *Handler {
	return &Handler{
		assistant: service,
		auth:      authService,
		catalog:   catalogService,
		workers:   workers,
	}
}

// check token userID is match with param userID
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		paramID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || paramID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if paramID != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
			return
		}
		c.Next()
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)
	authMW := h.auth.Middleware()

	userRoutes := api.Group("/users/:id")
	userRoutes.Use(authMW, h.requirePathUser(), h.auth.CSRFMiddleware())
	userRoutes.POST("/logout", h.logoutUser)
	userRoutes.DELETE("", h.deleteUser)
	userRoutes.POST("/chat/sessions", h.createSession)
	userRoutes.GET("/chat/sessions", h.listSessions)
	userRoutes.GET("/chat/sessions/:session_id", h.getSession)
	userRoutes.DELETE("/chat/sessions/:session_id", h.deleteSession)
	userRoutes.GET("/chat/sessions/:session_id/transcript", h.getTranscript)
	userRoutes.POST("/chat/message", h.postMessage)

	productRoutes := api.Group("/products")
	productRoutes.Use(authMW)
	productRoutes.GET("", h.listProducts)
	productRoutes.GET("/search", h.searchProducts)
	productRoutes.GET("/category/:category", h.listCategoryProducts)
	productRoutes.GET("/:product_id", h.getProduct)
}

// User create&login interface
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.RegisterUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, assistant.ErrMissingCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logging.FromContext(c).WithError(err).Warn("register user")
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not register user"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, assistant.ErrInvalidCredentials) || errors.Is(err, assistant.ErrMissingCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		logging.FromContext(c).WithError(err).Error("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), authToken); err != nil {
			logging.FromContext(c).WithError(err).Warn("revoke token on logout")
		}
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessions, err := h.assistant.ListSessions(c.Request.Context(), id)
	if err != nil {
		logging.FromContext(c).WithError(err).Error("list sessions before user delete")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		logging.FromContext(c).WithError(err).Error("revoke user tokens")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return
	}
	if err := h.assistant.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, se := range sessions {
		h.workers.Purge(se.ID)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) createSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	session, err := h.assistant.CreateSession(c.Request.Context(), userID)
	if err != nil {
		logging.FromContext(c).WithError(err).Error("create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return
	}
	c.JSON(http.StatusCreated, sessionPayload(session))
}

func (h *Handler) listSessions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	seList, err := h.assistant.ListSessions(c.Request.Context(), userID)
	if err != nil {
		logging.FromContext(c).WithError(err).Error("list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_list": seList,
	})
}

func (h *Handler) getSession(c *gin.Context) {
	session, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionPayload(session))
}

func (h *Handler) getTranscript(c *gin.Context) {
	session, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"messages":   chat.Transcript(session),
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	if err := h.assistant.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		logging.FromContext(c).WithError(err).Error("delete session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return
	}
	h.workers.Purge(sessionID)
	c.Status(http.StatusNoContent)
}

// User input interface
type messageRequest struct {
	SessionID int64  `json:"session_id"`
	Message   string `json:"message"`
}

func (h *Handler) postMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SessionID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	session, err := h.workers.Submit(worker.TurnRequest{
		Context:   c.Request.Context(),
		UserID:    userID,
		SessionID: req.SessionID,
		Text:      text,
	})
	if err != nil {
		h.writeTurnError(c, req.SessionID, err)
		return
	}
	payload := sessionPayload(session)
	if n := len(session.Messages); n > 0 {
		payload["reply"] = session.Messages[n-1]
	}
	c.JSON(http.StatusOK, payload)
}

func (h *Handler) writeTurnError(c *gin.Context, sessionID int64, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, worker.ErrDispatcherBusy), errors.Is(err, worker.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	default:
		logging.FromContext(c).WithError(err).WithField("session_id", sessionID).Error("chat turn failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
	}
}

func (h *Handler) loadOwnedSession(c *gin.Context) (*models.ChatSession, bool) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return nil, false
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return nil, false
	}
	session, err := h.assistant.GetSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return nil, false
		}
		logging.FromContext(c).WithError(err).Error("load session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return nil, false
	}
	return session, true
}

func sessionIDParam(c *gin.Context) (int64, bool) {
	sessionID, err := strconv.ParseInt(c.Param("session_id"), 10, 64)
	if err != nil || sessionID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return sessionID, true
}

func sessionPayload(session *models.ChatSession) gin.H {
	return gin.H{
		"session_id":      session.ID,
		"user_id":         session.UserID,
		"last_bot_intent": session.LastBotIntent,
		"started_at":      session.StartedAt,
		"last_activity":   session.LastActivity,
		"messages":        session.Messages,
	}
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
