package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/perfectpic/perfectpic/sdk/go/auth"
	"github.com/perfectpic/perfectpic/sdk/go/captcha"
	"github.com/perfectpic/perfectpic/sdk/go/routes"
)

func signedToken(t *testing.T) string {
	t.Helper()
	claims := auth.Claims{
		UserID:   7,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestLoginStoresTokenAndMergesCaptcha(t *testing.T) {
	token := signedToken(t)
	var mu sync.Mutex
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case routes.Login:
			if r.Method != http.MethodPost {
				t.Errorf("method = %s", r.Method)
			}
			mu.Lock()
			body = readBody(t, r)
			mu.Unlock()
			writeJSON(t, w, http.StatusOK, map[string]any{"token": token})
		case routes.UserProfile:
			if got := r.Header.Get("Authorization"); got != "Bearer "+token {
				t.Errorf("authorization = %q", got)
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{"id": 7, "username": "alice"}})
		}
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	res, err := client.Auth.Login(context.Background(), LoginRequest{
		Username: "alice",
		Password: "pw",
		Captcha:  captcha.BuildPayload(captcha.ProviderTurnstile, "", "", "tok-1"),
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if body["username"] != "alice" || body["password"] != "pw" || body[captcha.FieldCaptchaToken] != "tok-1" {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body[captcha.FieldCaptchaID]; ok {
		t.Fatalf("token provider body carries captcha_id: %v", body)
	}
	if res.Claims == nil || res.Claims.UserID != 7 || res.Claims.Username != "alice" {
		t.Fatalf("claims = %+v", res.Claims)
	}
	if client.Tokens().Token() != token {
		t.Fatalf("token not stored")
	}

	user, err := client.User.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if user.ID != 7 || user.Username != "alice" {
		t.Fatalf("user = %+v", user)
	}

	client.Auth.Logout()
	if client.Tokens().Token() != "" {
		t.Fatalf("token survived logout")
	}
}

func TestLoginOpaqueToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"token": "opaque"})
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	res, err := client.Auth.Login(context.Background(), LoginRequest{Username: "a", Password: "b"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "opaque" || res.Claims != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestLoginRejectedCaptcha(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"error": "验证码错误"})
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	_, err := client.Auth.Login(context.Background(), LoginRequest{Username: "a", Password: "b"})
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "验证码错误" {
		t.Fatalf("err = %v", err)
	}
	if client.Tokens().Token() != "" {
		t.Fatalf("token stored on failure")
	}
}

func TestLoginMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{})
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	_, err := client.Auth.Login(context.Background(), LoginRequest{Username: "a", Password: "b"})
	var tErr TransportError
	if !errors.As(err, &tErr) || tErr.Kind != TransportErrorEmptyResponse {
		t.Fatalf("err = %v", err)
	}
}

func TestAccountRequestsValidate(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx := context.Background()
	checks := []error{
		func() error { _, err := client.Auth.Login(ctx, LoginRequest{Password: "x"}); return err }(),
		func() error { _, err := client.Auth.Register(ctx, RegisterRequest{Username: "u", Password: "p"}); return err }(),
		func() error { _, err := client.Auth.RequestPasswordReset(ctx, " ", nil); return err }(),
		func() error { _, err := client.Auth.ResetPassword(ctx, "tok", ""); return err }(),
		func() error { _, err := client.Auth.VerifyEmail(ctx, ""); return err }(),
	}
	for i, err := range checks {
		var cfgErr ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("check %d err = %v, want ConfigError", i, err)
		}
	}
}

func TestAccountFlows(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := readBody(t, r)
		mu.Lock()
		bodies[r.URL.Path] = got
		mu.Unlock()
		writeJSON(t, w, http.StatusOK, map[string]any{"message": "done " + r.URL.Path})
	}))
	defer srv.Close()
	client := newTestClient(t, srv)
	ctx := context.Background()
	imagePayload := captcha.BuildPayload(captcha.ProviderImage, "c-1", "ab12", "")

	if _, err := client.Auth.Register(ctx, RegisterRequest{Username: "u", Email: "u@example.com", Password: "p", Captcha: imagePayload}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	msg, err := client.Auth.RequestPasswordReset(ctx, "u@example.com", imagePayload)
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if msg.Message != "done "+routes.PasswordResetRequest {
		t.Fatalf("message = %q", msg.Message)
	}
	if _, err := client.Auth.ResetPassword(ctx, "reset-tok", "n3w"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := client.Auth.VerifyEmail(ctx, "verify-tok"); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	reg := bodies[routes.Register]
	if reg["email"] != "u@example.com" || reg[captcha.FieldCaptchaID] != "c-1" || reg[captcha.FieldCaptchaAnswer] != "ab12" {
		t.Fatalf("register body = %v", reg)
	}
	if got := bodies[routes.PasswordResetRequest]; got["email"] != "u@example.com" || got[captcha.FieldCaptchaAnswer] != "ab12" {
		t.Fatalf("reset request body = %v", got)
	}
	if got := bodies[routes.PasswordReset]; got["token"] != "reset-tok" || got["new_password"] != "n3w" {
		t.Fatalf("reset body = %v", got)
	}
	if got := bodies[routes.EmailVerify]; got["token"] != "verify-tok" {
		t.Fatalf("verify body = %v", got)
	}
}

func TestSubmitRefreshesCaptchaOnRejection(t *testing.T) {
	var images atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case routes.Captcha:
			writeJSON(t, w, http.StatusOK, map[string]any{"provider": "image"})
		case routes.CaptchaImage:
			images.Add(1)
			writeJSON(t, w, http.StatusOK, map[string]any{"captcha_id": "c", "captcha_image": "data:,"})
		case routes.Login:
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": "验证码错误"})
		}
	}))
	defer srv.Close()
	client := newTestClient(t, srv)
	ctx := context.Background()

	s := client.Captcha.NewSession()
	defer s.Close()
	s.Start(ctx)
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	s.SetAnswer("wrong")
	err := captcha.Submit(ctx, s, func(ctx context.Context, p captcha.Payload) error {
		_, err := client.Auth.Login(ctx, LoginRequest{Username: "a", Password: "b", Captcha: p})
		return err
	})
	if err == nil {
		t.Fatalf("Submit succeeded")
	}
	if s.Image().Answer != "" {
		t.Fatalf("answer kept after rejection")
	}
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait after refresh: %v", err)
	}
	if n := images.Load(); n != 2 {
		t.Fatalf("image fetched %d times, want 2", n)
	}
}
