package errors

import "errors"

// Authentication errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

// Chat errors
var (
	ErrNotSignedIn  = errors.New("no identity signed in")
	ErrEmptyMessage = errors.New("message is empty")
	ErrRoomNotFound = errors.New("room not found")
)

// Store errors
var (
	ErrNotConnected = errors.New("not connected to store")
)

// ErrorResponse is the standard JSON error body returned by the API
type ErrorResponse struct {
	Error string `json:"error"`
}
