package sdk

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/perfectpic/perfectpic/sdk/go/auth"
	"github.com/perfectpic/perfectpic/sdk/go/captcha"
	"github.com/perfectpic/perfectpic/sdk/go/routes"
)

// AuthClient covers the captcha-guarded account flows.
type AuthClient struct {
	client *Client
}

func (a *AuthClient) ensureInitialized() error {
	if a == nil || a.client == nil {
		return ConfigError{Reason: "auth client not initialized"}
	}
	return nil
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string
	Password string
	Captcha  captcha.Payload
}

// Validate checks required fields before the request is sent.
func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return ConfigError{Reason: "username required"}
	}
	if r.Password == "" {
		return ConfigError{Reason: "password required"}
	}
	return nil
}

// LoginResult is a successful login. Claims is nil when the token is not a JWT.
type LoginResult struct {
	Token  string
	Claims *auth.Claims
}

// Login exchanges credentials for a session token and stores it in the
// client's token store.
func (a *AuthClient) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if err := a.ensureInitialized(); err != nil {
		return LoginResult{}, err
	}
	if err := req.Validate(); err != nil {
		return LoginResult{}, err
	}
	body := map[string]any{
		"username": req.Username,
		"password": req.Password,
	}
	req.Captcha.MergeInto(body)

	var resp struct {
		Token string `json:"token"`
	}
	if err := a.client.sendJSON(ctx, http.MethodPost, routes.Login, body, &resp); err != nil {
		return LoginResult{}, err
	}
	if resp.Token == "" {
		return LoginResult{}, TransportError{Kind: TransportErrorEmptyResponse, Message: "login response missing token"}
	}
	a.client.tokens.SetToken(resp.Token)

	result := LoginResult{Token: resp.Token}
	claims, err := auth.ParseClaims(resp.Token)
	switch {
	case err == nil:
		result.Claims = &claims
	case errors.Is(err, auth.ErrNotJWT):
	default:
		a.client.telemetry.Log(ctx, LogLevelWarn, "login_token_claims_unreadable", map[string]any{"error": err.Error()})
	}
	a.client.telemetry.Log(ctx, LogLevelInfo, "login_succeeded", map[string]any{"username": req.Username})
	return result, nil
}

// Logout forgets the stored token. The API keeps no server-side session.
func (a *AuthClient) Logout() {
	if a == nil || a.client == nil {
		return
	}
	a.client.tokens.Clear()
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
	Captcha  captcha.Payload
}

// Validate checks required fields before the request is sent.
func (r RegisterRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Username) == "":
		return ConfigError{Reason: "username required"}
	case strings.TrimSpace(r.Email) == "":
		return ConfigError{Reason: "email required"}
	case r.Password == "":
		return ConfigError{Reason: "password required"}
	}
	return nil
}

// MessageResponse is the {message} body most account endpoints return.
type MessageResponse struct {
	Message string `json:"message"`
}

// Register creates an account. Verification mail may follow, depending on
// the server's settings.
func (a *AuthClient) Register(ctx context.Context, req RegisterRequest) (MessageResponse, error) {
	if err := a.ensureInitialized(); err != nil {
		return MessageResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return MessageResponse{}, err
	}
	body := map[string]any{
		"username": req.Username,
		"email":    req.Email,
		"password": req.Password,
	}
	req.Captcha.MergeInto(body)
	return a.postMessage(ctx, routes.Register, body)
}

// RequestPasswordReset asks the server to mail a reset link to email.
func (a *AuthClient) RequestPasswordReset(ctx context.Context, email string, payload captcha.Payload) (MessageResponse, error) {
	if err := a.ensureInitialized(); err != nil {
		return MessageResponse{}, err
	}
	if strings.TrimSpace(email) == "" {
		return MessageResponse{}, ConfigError{Reason: "email required"}
	}
	body := map[string]any{"email": email}
	payload.MergeInto(body)
	return a.postMessage(ctx, routes.PasswordResetRequest, body)
}

// ResetPassword sets a new password using the token from the reset mail.
func (a *AuthClient) ResetPassword(ctx context.Context, token, newPassword string) (MessageResponse, error) {
	if err := a.ensureInitialized(); err != nil {
		return MessageResponse{}, err
	}
	if token == "" {
		return MessageResponse{}, ConfigError{Reason: "reset token required"}
	}
	if newPassword == "" {
		return MessageResponse{}, ConfigError{Reason: "new password required"}
	}
	return a.postMessage(ctx, routes.PasswordReset, map[string]any{
		"token":        token,
		"new_password": newPassword,
	})
}

// VerifyEmail confirms an address using the token from the verification mail.
func (a *AuthClient) VerifyEmail(ctx context.Context, token string) (MessageResponse, error) {
	if err := a.ensureInitialized(); err != nil {
		return MessageResponse{}, err
	}
	if token == "" {
		return MessageResponse{}, ConfigError{Reason: "verification token required"}
	}
	return a.postMessage(ctx, routes.EmailVerify, map[string]any{"token": token})
}

func (a *AuthClient) postMessage(ctx context.Context, path string, body map[string]any) (MessageResponse, error) {
	var resp MessageResponse
	if err := a.client.sendJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return MessageResponse{}, err
	}
	return resp, nil
}
