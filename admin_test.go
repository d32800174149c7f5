package sdk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func TestAdminListUsersQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/users" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "1" || q.Get("page_size") != "10" || q.Get("keyword") != "bo" || q.Get("show_deleted") != "true" || q.Get("order") != "asc" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"data":  []map[string]any{{"id": 1, "username": "bob", "status": 1}},
			"total": 31,
		})
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	page, err := client.Admin.ListUsers(context.Background(), UserListOptions{Page: 1, PageSize: 10, Keyword: "bo", ShowDeleted: true, Order: "asc"})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if page.Total != 31 || len(page.Users) != 1 || page.Users[0].Username != "bob" || page.Users[0].Status != 1 {
		t.Fatalf("page = %+v", page)
	}
}

func TestAdminUserUnwrapsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/users/7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{"id": 7, "username": "eve", "avatar": "a.png"}})
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	user, err := client.Admin.User(context.Background(), 7)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if user.ID != 7 || user.Username != "eve" {
		t.Fatalf("user = %+v", user)
	}
	if got := AvatarURL("/avatars/", user); got != "/avatars/7/a.png" {
		t.Fatalf("avatar url = %q", got)
	}
}

type recordedRequest struct {
	method      string
	path        string
	query       string
	contentType string
	body        string
}

type requestLog struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (l *requestLog) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		l.mu.Lock()
		l.reqs = append(l.reqs, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			contentType: r.Header.Get("Content-Type"),
			body:        strings.TrimSpace(string(data)),
		})
		l.mu.Unlock()
		writeJSON(t, w, http.StatusOK, map[string]any{"message": "ok"})
	}
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.reqs...)
}

func TestAdminUserMutations(t *testing.T) {
	calls := &requestLog{}
	srv := httptest.NewServer(calls.handler(t))
	defer srv.Close()
	client := newTestClient(t, srv)
	ctx := context.Background()

	if err := client.Admin.CreateUser(ctx, CreateUserRequest{Username: "amy", Password: "pw", Status: 1}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	name := "amy2"
	if err := client.Admin.UpdateUser(ctx, 3, UpdateUserRequest{Username: &name}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if err := client.Admin.UpdateUser(ctx, 3, UpdateUserRequest{}); err != nil {
		t.Fatalf("UpdateUser empty: %v", err)
	}
	if err := client.Admin.SetUserAvatar(ctx, 3, "me.jpg", strings.NewReader("JPEG")); err != nil {
		t.Fatalf("SetUserAvatar: %v", err)
	}
	if err := client.Admin.RemoveUserAvatar(ctx, 3); err != nil {
		t.Fatalf("RemoveUserAvatar: %v", err)
	}
	if err := client.Admin.DeleteUser(ctx, 3, false); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := client.Admin.DeleteUser(ctx, 4, true); err != nil {
		t.Fatalf("DeleteUser hard: %v", err)
	}

	reqs := calls.all()
	if len(reqs) != 6 {
		t.Fatalf("requests = %+v", reqs)
	}
	if r := reqs[0]; r.method != http.MethodPost || r.path != "/api/admin/users" ||
		r.body != `{"username":"amy","password":"pw","avatar":"","status":1}` {
		t.Fatalf("create = %+v", r)
	}
	if r := reqs[1]; r.method != http.MethodPatch || r.path != "/api/admin/users/3" || r.body != `{"username":"amy2"}` {
		t.Fatalf("update = %+v", r)
	}
	if r := reqs[2]; r.method != http.MethodPost || r.path != "/api/admin/users/3/avatar" ||
		!strings.HasPrefix(r.contentType, "multipart/form-data; boundary=") || !strings.Contains(r.body, "JPEG") {
		t.Fatalf("set avatar = %+v", r)
	}
	if r := reqs[3]; r.method != http.MethodDelete || r.path != "/api/admin/users/3/avatar" {
		t.Fatalf("remove avatar = %+v", r)
	}
	if r := reqs[4]; r.method != http.MethodDelete || r.path != "/api/admin/users/3" || r.query != "hard_delete=false" {
		t.Fatalf("soft delete = %+v", r)
	}
	if r := reqs[5]; r.query != "hard_delete=true" {
		t.Fatalf("hard delete = %+v", r)
	}
}

func TestAdminCreateUserValidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	var cfgErr ConfigError
	if err := client.Admin.CreateUser(context.Background(), CreateUserRequest{Username: " ", Password: "pw"}); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if err := client.Admin.DeleteUser(context.Background(), 0, true); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestAdminImages(t *testing.T) {
	calls := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			q := r.URL.Query()
			if q.Get("id") != "9" || q.Get("username") != "bob" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			writeJSON(t, w, http.StatusOK, map[string]any{
				"list":  []map[string]any{{"id": 9, "user_id": 3, "username": "bob", "size": 2048}},
				"total": 1,
			})
			return
		}
		calls.handler(t)(w, r)
	}))
	defer srv.Close()
	client := newTestClient(t, srv)
	ctx := context.Background()

	page, err := client.Admin.ListImages(ctx, AdminImageListOptions{ID: 9, Username: "bob"})
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	want := ImagePage{Images: []Image{{ID: 9, UserID: 3, Username: "bob", Size: 2048}}, Total: 1}
	if !reflect.DeepEqual(page, want) {
		t.Fatalf("page = %+v", page)
	}
	if err := client.Admin.DeleteImage(ctx, 9); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if err := client.Admin.DeleteImages(ctx, []int64{9, 10}); err != nil {
		t.Fatalf("DeleteImages: %v", err)
	}

	reqs := calls.all()
	if len(reqs) != 2 {
		t.Fatalf("requests = %+v", reqs)
	}
	if r := reqs[0]; r.method != http.MethodDelete || r.path != "/api/admin/images/9" {
		t.Fatalf("delete = %+v", r)
	}
	if r := reqs[1]; r.method != http.MethodDelete || r.path != "/api/admin/images/batch" || r.body != `{"ids":[9,10]}` {
		t.Fatalf("batch = %+v", r)
	}
}

func TestAdminSettingsRoundTrip(t *testing.T) {
	calls := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(t, w, http.StatusOK, []map[string]any{
				{"Key": "site_name", "Value": "Perfect Pic", "Desc": "name"},
				{"Key": "allow_register", "Value": "true", "Desc": "open signup"},
			})
			return
		}
		calls.handler(t)(w, r)
	}))
	defer srv.Close()
	client := newTestClient(t, srv)
	ctx := context.Background()

	before, err := client.Admin.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if len(before) != 2 || before[1].Key != "allow_register" || before[1].Desc != "open signup" {
		t.Fatalf("settings = %+v", before)
	}
	after := append([]Setting(nil), before...)
	after[1].Value = "false"
	after = append(after, Setting{Key: "unknown", Value: "x"})

	updates := ChangedSettings(before, after)
	if !reflect.DeepEqual(updates, []SettingUpdate{{Key: "allow_register", Value: "false"}}) {
		t.Fatalf("updates = %+v", updates)
	}
	if err := client.Admin.UpdateSettings(ctx, updates); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if err := client.Admin.UpdateSettings(ctx, nil); err != nil {
		t.Fatalf("UpdateSettings empty: %v", err)
	}

	reqs := calls.all()
	if len(reqs) != 1 {
		t.Fatalf("requests = %+v", reqs)
	}
	if r := reqs[0]; r.method != http.MethodPatch || r.path != "/api/admin/settings" || r.body != `[{"key":"allow_register","value":"false"}]` {
		t.Fatalf("patch = %+v", r)
	}
}

func TestAdminStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/stats" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"image_count": 10, "user_count": 2, "storage_usage": 4096,
			"system_info": map[string]any{"os": "linux", "arch": "amd64", "go_version": "go1.25", "num_cpu": 8, "num_goroutine": 31},
		})
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	stats, err := client.Admin.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{
		ImageCount: 10, UserCount: 2, StorageUsage: 4096,
		SystemInfo: SystemInfo{OS: "linux", Arch: "amd64", GoVersion: "go1.25", NumCPU: 8, NumGoroutine: 31},
	}
	if stats != want {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestAdminForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]any{"error": "需要管理员权限"})
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	_, err := client.Admin.Stats(context.Background())
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("err = %v", err)
	}
}
