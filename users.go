package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/perfectpic/perfectpic/sdk/go/routes"
)

// User is the profile of the signed-in account.
type User struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Admin         bool   `json:"admin"`
	Avatar        string `json:"avatar,omitempty"`
	StorageQuota  *int64 `json:"storage_quota"`
	StorageUsed   int64  `json:"storage_used"`
	Status        int    `json:"status"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// UserClient reads and edits the signed-in user.
type UserClient struct {
	client *Client
}

// Profile returns the signed-in user. The endpoint answers with either the
// user object or {"data": user}; both are accepted.
func (u *UserClient) Profile(ctx context.Context) (User, error) {
	if err := u.ensureInitialized(); err != nil {
		return User{}, err
	}
	var raw json.RawMessage
	if err := u.client.sendJSON(ctx, http.MethodGet, routes.UserProfile, nil, &raw); err != nil {
		return User{}, err
	}
	var user User
	if err := json.Unmarshal(unwrapData(raw), &user); err != nil {
		return User{}, fmt.Errorf("sdk: decode profile: %w", err)
	}
	return user, nil
}

// UpdateUsername renames the signed-in user.
func (u *UserClient) UpdateUsername(ctx context.Context, username string) error {
	if err := u.ensureInitialized(); err != nil {
		return err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return ConfigError{Reason: "username is required"}
	}
	payload := map[string]string{"username": username}
	return u.client.sendJSON(ctx, http.MethodPatch, routes.UserUsername, payload, nil)
}

// UpdatePassword changes the signed-in user's password.
func (u *UserClient) UpdatePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := u.ensureInitialized(); err != nil {
		return err
	}
	if oldPassword == "" || newPassword == "" {
		return ConfigError{Reason: "old and new password are required"}
	}
	payload := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return u.client.sendJSON(ctx, http.MethodPatch, routes.UserPassword, payload, nil)
}

// UpdateAvatar uploads a new avatar for the signed-in user.
func (u *UserClient) UpdateAvatar(ctx context.Context, filename string, content io.Reader) error {
	if err := u.ensureInitialized(); err != nil {
		return err
	}
	return u.client.sendMultipart(ctx, http.MethodPatch, routes.UserAvatar, filename, content, nil)
}

func (u *UserClient) ensureInitialized() error {
	if u == nil || u.client == nil {
		return ConfigError{Reason: "user client not initialized"}
	}
	return nil
}

// unwrapData returns the object under "data" when raw is {"data": {...}},
// and raw otherwise.
func unwrapData(raw json.RawMessage) json.RawMessage {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if d := bytes.TrimSpace(wrapped.Data); len(d) > 0 && d[0] == '{' {
			return d
		}
	}
	return raw
}

// AvatarURL joins the avatar prefix, user id and avatar file name. It is
// empty when the user has no avatar.
func AvatarURL(prefix string, user User) string {
	if user.Avatar == "" {
		return ""
	}
	return prefix + strconv.FormatInt(user.ID, 10) + "/" + user.Avatar
}
