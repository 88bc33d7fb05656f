package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/chat"
	"github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/identity"
	"github.com/PatricioTamez/orchestrator2.0/internal/middleware"
	"github.com/PatricioTamez/orchestrator2.0/internal/models"
)

const requestTimeout = 10 * time.Second

// Handler holds all HTTP handlers and their dependencies
type Handler struct {
	provider     *identity.Provider
	manager      *chat.Manager
	mongoHealthy func() bool
	storeHealthy func() bool
	log          *zap.Logger
}

// NewHandler creates a new handler with all dependencies
func NewHandler(provider *identity.Provider, manager *chat.Manager, mongoHealthy, storeHealthy func() bool, log *zap.Logger) *Handler {
	return &Handler{
		provider:     provider,
		manager:      manager,
		mongoHealthy: mongoHealthy,
		storeHealthy: storeHealthy,
		log:          log,
	}
}

// Signup handles user registration
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.provider.SignUp(ctx, req.Email, req.Password, req.DisplayName); err != nil {
		switch err {
		case errors.ErrUserAlreadyExists:
			c.JSON(http.StatusConflict, errors.ErrorResponse{Error: "user already exists"})
		default:
			h.log.Error("signup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errors.ErrorResponse{Error: "registration failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, APIResponse{Message: "User registered successfully"})
}

// Login handles password authentication
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	id, token, err := h.provider.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		switch err {
		case errors.ErrInvalidCredentials, errors.ErrUserNotFound:
			c.JSON(http.StatusUnauthorized, errors.ErrorResponse{Error: "invalid email or password"})
		default:
			h.log.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errors.ErrorResponse{Error: "authentication failed"})
		}
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, Identity: id})
}

// LoginExternal completes a federated sign-in. The assertion is assumed
// verified by the upstream provider before reaching this endpoint.
func (h *Handler) LoginExternal(c *gin.Context) {
	var req ExternalLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	id, token, err := h.provider.SignInExternal(ctx, req.Provider, req.ExternalID, req.Email, req.DisplayName)
	if err != nil {
		h.log.Error("external login failed",
			zap.String("provider", req.Provider), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errors.ErrorResponse{Error: "authentication failed"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, Identity: id})
}

// Logout ends the session and releases the identity's chat client.
func (h *Handler) Logout(c *gin.Context) {
	id, ok := h.identityFor(c)
	if !ok {
		return
	}

	h.provider.SignOut(id)
	c.JSON(http.StatusOK, APIResponse{Message: "Signed out"})
}

// GetRooms returns the room directory and the current selection.
func (h *Handler) GetRooms(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, RoomsResponse{
		Rooms:    client.Rooms(),
		Selected: client.Selected(),
	})
}

// CreateRoom creates a room and selects it.
func (h *Handler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	room, err := client.CreateRoom(ctx, req.Name)
	if err != nil {
		h.log.Error("create room failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errors.ErrorResponse{Error: "failed to create chatroom"})
		return
	}

	c.JSON(http.StatusCreated, room)
}

// DeleteRoom removes a room and its messages.
func (h *Handler) DeleteRoom(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := client.DeleteRoom(ctx, c.Param("id")); err != nil {
		h.log.Error("delete room failed", zap.String("room", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errors.ErrorResponse{Error: "failed to delete chatroom"})
		return
	}

	c.JSON(http.StatusOK, APIResponse{Message: "Chatroom deleted"})
}

// SelectRoom switches the message stream to the given room.
func (h *Handler) SelectRoom(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	if err := client.Select(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, errors.ErrorResponse{Error: "chatroom not found"})
		return
	}

	c.JSON(http.StatusOK, APIResponse{Message: "Chatroom selected"})
}

// GetMessages returns the selected room's message list.
func (h *Handler) GetMessages(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, MessagesResponse{
		RoomID:   client.Selected(),
		Messages: client.Messages(),
	})
}

// SendMessage appends a message to the selected room via the draft
// buffer, so a failed send leaves the draft intact for retry.
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	client.SetDraft(req.Content)
	if err := client.SendDraft(ctx); err != nil {
		switch err {
		case errors.ErrEmptyMessage:
			c.JSON(http.StatusBadRequest, errors.ErrorResponse{Error: "message is empty"})
		default:
			h.log.Error("send failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errors.ErrorResponse{Error: "failed to send message"})
		}
		return
	}

	c.JSON(http.StatusOK, APIResponse{Message: "Message sent successfully"})
}

// GetDraft returns the composer buffer.
func (h *Handler) GetDraft(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, DraftResponse{Content: client.Draft()})
}

// PutDraft stores the composer buffer.
func (h *Handler) PutDraft(c *gin.Context) {
	var req DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}

	client.SetDraft(req.Content)
	c.JSON(http.StatusOK, APIResponse{Message: "Draft saved"})
}

// Events streams state-change ticks and banners over SSE. On every tick
// the client re-fetches rooms and messages; banners are delivered as
// their own event type.
func (h *Handler) Events(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	ticks, cancelTicks := client.Subscribe()
	defer cancelTicks()
	banners, cancelBanners := client.Banners().Subscribe()
	defer cancelBanners()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ticks:
			c.SSEvent("state", StateEvent{
				Rooms:    client.Rooms(),
				Selected: client.Selected(),
				Messages: client.Messages(),
			})
			return true
		case banner, open := <-banners:
			if !open {
				return false
			}
			c.SSEvent("banner", banner)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// HealthCheck provides system health status
func (h *Handler) HealthCheck(c *gin.Context) {
	mongoStatus := "disconnected"
	if h.mongoHealthy != nil && h.mongoHealthy() {
		mongoStatus = "connected"
	}

	storeStatus := "disconnected"
	if h.storeHealthy != nil && h.storeHealthy() {
		storeStatus = "connected"
	}

	status := "healthy"
	if mongoStatus != "connected" && storeStatus != "connected" {
		status = "unhealthy"
	} else if mongoStatus != "connected" || storeStatus != "connected" {
		status = "degraded"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:  status,
		MongoDB: mongoStatus,
		Store:   storeStatus,
	})
}

// identityFor resolves the authenticated identity from the validated
// email claim.
func (h *Handler) identityFor(c *gin.Context) (*models.Identity, bool) {
	email := middleware.GetUserEmail(c)
	if email == "" {
		c.JSON(http.StatusUnauthorized, errors.ErrorResponse{Error: "user not authenticated"})
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	id, err := h.provider.IdentityFor(ctx, email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errors.ErrorResponse{Error: "user not found"})
		return nil, false
	}
	return id, true
}

// client resolves the authenticated identity's chat client, attaching
// one if the session outlived the process that created it.
func (h *Handler) client(c *gin.Context) (*chat.Client, bool) {
	id, ok := h.identityFor(c)
	if !ok {
		return nil, false
	}
	return h.manager.Attach(id), true
}
