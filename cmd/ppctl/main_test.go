package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/perfectpic/perfectpic/sdk/go/routes"
)

func testServer(t *testing.T, provider string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body any
		switch r.URL.Path {
		case routes.Captcha:
			body = map[string]any{"provider": provider, "public_config": map[string]any{"sitekey": "hc-key"}}
		case routes.CaptchaImage:
			body = map[string]any{"captcha_id": "c-1", "captcha_image": "data:image/png;base64,aGVsbG8="}
		case routes.Login:
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["captcha_answer"] != "ab12" && req["captcha_token"] != "widget-tok" {
				body = map[string]any{"error": "验证码错误"}
				break
			}
			body = map[string]any{"token": "session-token"}
		case routes.UserProfile:
			if r.Header.Get("Authorization") != "Bearer session-token" {
				w.WriteHeader(http.StatusUnauthorized)
				body = map[string]any{"error": "unauthorized"}
				break
			}
			body = map[string]any{"data": map[string]any{"id": 1, "username": "alice", "admin": true, "storage_used": 10}}
		case routes.WebInfo:
			body = []map[string]any{{"key": "site_name", "value": "Pics"}}
		default:
			w.WriteHeader(http.StatusNotFound)
			body = map[string]any{"error": "not found"}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, srv *httptest.Server) Config {
	t.Helper()
	return Config{
		BaseURL:   srv.URL,
		TokenFile: filepath.Join(t.TempDir(), "token"),
		Locale:    "en",
		Timeout:   5 * time.Second,
		LogLevel:  "error",
	}
}

func runCmd(t *testing.T, cfg Config, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, cfg, strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func TestLoginWithImageCaptcha(t *testing.T) {
	srv := testServer(t, "image")
	cfg := testConfig(t, srv)
	imgPath := filepath.Join(t.TempDir(), "captcha.png")

	out, err := runCmd(t, cfg, "ab12\n", "login", "-u", "alice", "-p", "pw", "-image-out", imgPath)
	if err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	if !strings.Contains(out, "logged in as alice") {
		t.Fatalf("output = %q", out)
	}
	img, err := os.ReadFile(imgPath)
	if err != nil || string(img) != "hello" {
		t.Fatalf("image file = %q, %v", img, err)
	}
	saved, err := os.ReadFile(cfg.TokenFile)
	if err != nil || strings.TrimSpace(string(saved)) != "session-token" {
		t.Fatalf("token file = %q, %v", saved, err)
	}

	out, err = runCmd(t, cfg, "", "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out, "alice (#1, admin)") || !strings.Contains(out, "unlimited") {
		t.Fatalf("whoami output = %q", out)
	}

	if _, err := runCmd(t, cfg, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := os.Stat(cfg.TokenFile); !os.IsNotExist(err) {
		t.Fatalf("token file still present: %v", err)
	}
	if _, err := runCmd(t, cfg, "", "whoami"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("whoami after logout err = %v", err)
	}
}

func TestLoginWrongAnswer(t *testing.T) {
	srv := testServer(t, "image")
	cfg := testConfig(t, srv)

	_, err := runCmd(t, cfg, "", "login", "-u", "alice", "-p", "pw", "-answer", "nope")
	if err == nil || !strings.Contains(err.Error(), "验证码错误") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoginWidgetProviderNeedsToken(t *testing.T) {
	srv := testServer(t, "hcaptcha")
	cfg := testConfig(t, srv)

	if _, err := runCmd(t, cfg, "", "login", "-u", "alice", "-p", "pw"); err == nil || !strings.Contains(err.Error(), "-captcha-token") {
		t.Fatalf("err = %v", err)
	}
	out, err := runCmd(t, cfg, "", "login", "-u", "alice", "-p", "pw", "-captcha-token", "widget-tok")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "logged in as alice") {
		t.Fatalf("output = %q", out)
	}
}

func TestCaptchaCommand(t *testing.T) {
	cases := []struct {
		provider string
		want     []string
	}{
		{provider: "hcaptcha", want: []string{"provider:  hcaptcha", "view:      widget", "site key:  hc-key"}},
		{provider: "image", want: []string{"view:      image", "captcha id: c-1"}},
		{provider: "", want: []string{"provider:  none", "view:      hidden"}},
		{provider: "friendlycaptcha", want: []string{"view:      unsupported", "Unsupported captcha provider: friendlycaptcha"}},
	}
	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			srv := testServer(t, tc.provider)
			out, err := runCmd(t, testConfig(t, srv), "", "captcha")
			if err != nil {
				t.Fatalf("captcha: %v", err)
			}
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Fatalf("output %q missing %q", out, w)
				}
			}
		})
	}
}

func TestProbeWithoutWidget(t *testing.T) {
	srv := testServer(t, "image")
	out, err := runCmd(t, testConfig(t, srv), "", "probe")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !strings.Contains(out, "view:     image") {
		t.Fatalf("output = %q", out)
	}
}

func TestSiteCommand(t *testing.T) {
	srv := testServer(t, "")
	out, err := runCmd(t, testConfig(t, srv), "", "site")
	if err != nil {
		t.Fatalf("site: %v", err)
	}
	if !strings.Contains(out, "site_name=Pics\n") || !strings.Contains(out, "site_description=记录与分享完美瞬间\n") {
		t.Fatalf("output = %q", out)
	}
}

func TestUsageErrors(t *testing.T) {
	srv := testServer(t, "")
	cfg := testConfig(t, srv)
	if _, err := runCmd(t, cfg, ""); err == nil {
		t.Fatalf("no command accepted")
	}
	if _, err := runCmd(t, cfg, "", "bogus"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("err = %v", err)
	}
	cfg.BaseURL = ""
	if _, err := runCmd(t, cfg, "", "site"); err == nil || !strings.Contains(err.Error(), "base URL required") {
		t.Fatalf("err = %v", err)
	}
}

func TestDecodeDataURL(t *testing.T) {
	got, err := decodeDataURL("data:text/plain,hi%20there")
	if err != nil || string(got) != "hi there" {
		t.Fatalf("plain = %q, %v", got, err)
	}
	if _, err := decodeDataURL("https://example.com/x.png"); err == nil {
		t.Fatalf("non data URL accepted")
	}
	if _, err := decodeDataURL("data:image/png;base64,@@@"); err == nil {
		t.Fatalf("bad base64 accepted")
	}
}
