package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

var (
	// ErrInvalidCredentials is returned by Login when the server rejects the
	// username or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginUnavailable is returned by Login when the backend cannot be reached
	// or answers with a server error.
	ErrLoginUnavailable = errors.New("login backend unavailable")
	// ErrMalformedLoginResponse is returned when the login response lacks tokens
	// or carries an undecodable access token.
	ErrMalformedLoginResponse = errors.New("malformed login response")
	// ErrLoginInProgress is returned when Login is called while another login is
	// in flight.
	ErrLoginInProgress = errors.New("login already in progress")
	// ErrAlreadyAuthenticated is returned when Login is called on an
	// authenticated engine.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrLogoutInProgress is returned when Login is called during teardown.
	ErrLogoutInProgress = errors.New("logout in progress")
	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRefreshRejected is returned when the server refuses the refresh token.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrRefreshFailed is returned when a refresh could not complete.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrEngineClosed is returned after Dispose.
	ErrEngineClosed = errors.New("engine disposed")
	// ErrEngineNotInitialized is returned before Init.
	ErrEngineNotInitialized = errors.New("engine not initialized")
)

// Re-exported package sentinels so callers can match with errors.Is without
// importing sub-packages.
var (
	ErrStoreUnavailable  = session.ErrStoreUnavailable
	ErrNoCredentials     = session.ErrNoCredentials
	ErrTokenMalformed    = jwt.ErrTokenMalformed
	ErrMalformedResponse = api.ErrMalformedResponse
)
