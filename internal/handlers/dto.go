package handlers

import "github.com/PatricioTamez/orchestrator2.0/internal/models"

// Request DTOs

type SignupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"display_name" binding:"max=64"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ExternalLoginRequest struct {
	Provider    string `json:"provider" binding:"required"`
	ExternalID  string `json:"external_id" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name" binding:"max=64"`
}

type CreateRoomRequest struct {
	Name string `json:"name" binding:"max=128"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=1024"`
}

type DraftRequest struct {
	Content string `json:"content" binding:"max=1024"`
}

// Response DTOs

type LoginResponse struct {
	Token    string           `json:"token"`
	Identity *models.Identity `json:"identity"`
}

type RoomsResponse struct {
	Rooms    []models.Room `json:"rooms"`
	Selected string        `json:"selected,omitempty"`
}

type MessagesResponse struct {
	RoomID   string           `json:"room_id,omitempty"`
	Messages []models.Message `json:"messages"`
}

type DraftResponse struct {
	Content string `json:"content"`
}

// StateEvent is the payload of the SSE "state" event: the full mirrored
// view after a change, matching the full-replace snapshot semantics.
type StateEvent struct {
	Rooms    []models.Room    `json:"rooms"`
	Selected string           `json:"selected,omitempty"`
	Messages []models.Message `json:"messages"`
}

type APIResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	MongoDB string `json:"mongodb"`
	Store   string `json:"store"`
}
