package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/perfectpic/perfectpic/sdk/go/routes"
)

// AdminClient exposes the admin-only account, image and settings endpoints.
// The server rejects these for non-admin tokens.
type AdminClient struct {
	client *Client
}

func (c *AdminClient) ensureInitialized() error {
	if c == nil || c.client == nil {
		return ConfigError{Reason: "admin client not initialized"}
	}
	return nil
}

// UserListOptions filters the account listing.
type UserListOptions struct {
	Page        int
	PageSize    int
	Keyword     string
	ShowDeleted bool
	// Order is "asc" or "desc"; empty leaves the server default.
	Order string
}

// UserPage is one page of accounts.
type UserPage struct {
	Users []User `json:"data"`
	Total int64  `json:"total"`
}

// CreateUserRequest creates an account. Status 1 is active.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
	Status   int    `json:"status"`
}

func (r CreateUserRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return ConfigError{Reason: "username is required"}
	}
	if r.Password == "" {
		return ConfigError{Reason: "password is required"}
	}
	return nil
}

// UpdateUserRequest patches an account. Nil fields are left unchanged.
type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Status   *int    `json:"status,omitempty"`
}

func (r UpdateUserRequest) empty() bool {
	return r.Username == nil && r.Password == nil && r.Status == nil
}

// AdminImageListOptions filters the admin image listing.
type AdminImageListOptions struct {
	Page     int
	PageSize int
	ID       int64
	Username string
}

// Setting is one admin-editable site setting.
type Setting struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
	Desc  string `json:"Desc"`
}

// SettingUpdate sets one setting to a new value.
type SettingUpdate struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Stats summarizes storage and the host the server runs on.
type Stats struct {
	ImageCount   int64      `json:"image_count"`
	UserCount    int64      `json:"user_count"`
	StorageUsage int64      `json:"storage_usage"`
	SystemInfo   SystemInfo `json:"system_info"`
}

type SystemInfo struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
}

// ListUsers returns one page of accounts.
func (c *AdminClient) ListUsers(ctx context.Context, opts UserListOptions) (UserPage, error) {
	if err := c.ensureInitialized(); err != nil {
		return UserPage{}, err
	}
	params := pageValues(opts.Page, opts.PageSize)
	if opts.Keyword != "" {
		params.Set("keyword", opts.Keyword)
	}
	if opts.ShowDeleted {
		params.Set("show_deleted", "true")
	}
	if opts.Order != "" {
		params.Set("order", opts.Order)
	}
	var out UserPage
	if err := c.client.sendJSON(ctx, http.MethodGet, withQuery(routes.AdminUsers, params), nil, &out); err != nil {
		return UserPage{}, err
	}
	return out, nil
}

// User returns one account. Both {"data": user} and a bare user are accepted.
func (c *AdminClient) User(ctx context.Context, id int64) (User, error) {
	if err := c.ensureInitialized(); err != nil {
		return User{}, err
	}
	if id <= 0 {
		return User{}, ConfigError{Reason: "user id is required"}
	}
	var raw json.RawMessage
	if err := c.client.sendJSON(ctx, http.MethodGet, withID(routes.AdminUserByID, id), nil, &raw); err != nil {
		return User{}, err
	}
	var user User
	if err := json.Unmarshal(unwrapData(raw), &user); err != nil {
		return User{}, fmt.Errorf("sdk: decode user: %w", err)
	}
	return user, nil
}

func (c *AdminClient) CreateUser(ctx context.Context, req CreateUserRequest) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	return c.client.sendJSON(ctx, http.MethodPost, routes.AdminUsers, req, nil)
}

// UpdateUser patches an account. An empty patch sends nothing.
func (c *AdminClient) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if id <= 0 {
		return ConfigError{Reason: "user id is required"}
	}
	if req.empty() {
		return nil
	}
	return c.client.sendJSON(ctx, http.MethodPatch, withID(routes.AdminUserByID, id), req, nil)
}

// DeleteUser disables an account, or removes it with its images when hard is
// set.
func (c *AdminClient) DeleteUser(ctx context.Context, id int64, hard bool) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if id <= 0 {
		return ConfigError{Reason: "user id is required"}
	}
	path := withID(routes.AdminUserByID, id) + "?hard_delete=" + strconv.FormatBool(hard)
	return c.client.sendJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *AdminClient) SetUserAvatar(ctx context.Context, id int64, filename string, content io.Reader) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if id <= 0 {
		return ConfigError{Reason: "user id is required"}
	}
	return c.client.sendMultipart(ctx, http.MethodPost, withID(routes.AdminUserAvatar, id), filename, content, nil)
}

func (c *AdminClient) RemoveUserAvatar(ctx context.Context, id int64) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if id <= 0 {
		return ConfigError{Reason: "user id is required"}
	}
	return c.client.sendJSON(ctx, http.MethodDelete, withID(routes.AdminUserAvatar, id), nil, nil)
}

// ListImages returns one page of every user's images.
func (c *AdminClient) ListImages(ctx context.Context, opts AdminImageListOptions) (ImagePage, error) {
	if err := c.ensureInitialized(); err != nil {
		return ImagePage{}, err
	}
	params := pageValues(opts.Page, opts.PageSize)
	if opts.ID > 0 {
		params.Set("id", strconv.FormatInt(opts.ID, 10))
	}
	if opts.Username != "" {
		params.Set("username", opts.Username)
	}
	var raw json.RawMessage
	if err := c.client.sendJSON(ctx, http.MethodGet, withQuery(routes.AdminImages, params), nil, &raw); err != nil {
		return ImagePage{}, err
	}
	return decodeImagePage(raw)
}

func (c *AdminClient) DeleteImage(ctx context.Context, id int64) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if id <= 0 {
		return ConfigError{Reason: "image id is required"}
	}
	return c.client.sendJSON(ctx, http.MethodDelete, withID(routes.AdminImageByID, id), nil, nil)
}

func (c *AdminClient) DeleteImages(ctx context.Context, ids []int64) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return ConfigError{Reason: "image ids are required"}
	}
	return c.client.sendJSON(ctx, http.MethodDelete, routes.AdminImagesBatch, batchIDs{IDs: ids}, nil)
}

// Settings returns every site setting. A body that is not an array yields
// no settings.
func (c *AdminClient) Settings(ctx context.Context) ([]Setting, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.client.sendJSON(ctx, http.MethodGet, routes.AdminSettings, nil, &raw); err != nil {
		return nil, err
	}
	var settings []Setting
	if err := json.Unmarshal(raw, &settings); err != nil {
		c.client.telemetry.Log(ctx, LogLevelWarn, "admin_settings_unexpected_shape", map[string]any{"error": err.Error()})
		return nil, nil
	}
	return settings, nil
}

// UpdateSettings writes the given settings. Nothing is sent when updates is
// empty.
func (c *AdminClient) UpdateSettings(ctx context.Context, updates []SettingUpdate) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	return c.client.sendJSON(ctx, http.MethodPatch, routes.AdminSettings, updates, nil)
}

// ChangedSettings returns the updates that turn before into after, keyed by
// setting name. Keys missing from before are skipped.
func ChangedSettings(before, after []Setting) []SettingUpdate {
	old := make(map[string]string, len(before))
	for _, s := range before {
		old[s.Key] = s.Value
	}
	var out []SettingUpdate
	for _, s := range after {
		prev, ok := old[s.Key]
		if !ok || prev == s.Value {
			continue
		}
		out = append(out, SettingUpdate{Key: s.Key, Value: s.Value})
	}
	return out
}

func (c *AdminClient) Stats(ctx context.Context) (Stats, error) {
	if err := c.ensureInitialized(); err != nil {
		return Stats{}, err
	}
	var out Stats
	if err := c.client.sendJSON(ctx, http.MethodGet, routes.AdminStats, nil, &out); err != nil {
		return Stats{}, err
	}
	return out, nil
}
