package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/perfectpic/perfectpic/sdk/go/routes"
)

// Site setting keys with defaults.
const (
	SiteName        = "site_name"
	SiteDescription = "site_description"
	SiteLogo        = "site_logo"
	SiteFavicon     = "site_favicon"
)

// SiteInfo is the public site configuration keyed by setting name.
type SiteInfo map[string]string

// DefaultSiteInfo returns the values used until the server says otherwise.
func DefaultSiteInfo() SiteInfo {
	return SiteInfo{
		SiteName:        "Perfect Pic",
		SiteDescription: "记录与分享完美瞬间",
		SiteLogo:        "",
		SiteFavicon:     "",
	}
}

func (s SiteInfo) Name() string        { return s[SiteName] }
func (s SiteInfo) Description() string { return s[SiteDescription] }

// SiteClient reads public site settings.
type SiteClient struct {
	client *Client
}

type siteSetting struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Info returns the site settings merged over DefaultSiteInfo. A body that is
// not an array leaves the defaults in place.
func (s *SiteClient) Info(ctx context.Context) (SiteInfo, error) {
	if s == nil || s.client == nil {
		return nil, ConfigError{Reason: "site client not initialized"}
	}
	var raw json.RawMessage
	if err := s.client.sendJSON(ctx, http.MethodGet, routes.WebInfo, nil, &raw); err != nil {
		return nil, err
	}
	info := DefaultSiteInfo()
	var settings []siteSetting
	if err := json.Unmarshal(raw, &settings); err != nil {
		s.client.telemetry.Log(ctx, LogLevelWarn, "site_info_unexpected_shape", map[string]any{"error": err.Error()})
		return info, nil
	}
	for _, item := range settings {
		if item.Key == "" {
			continue
		}
		info[item.Key] = settingValue(item.Value)
	}
	return info, nil
}

// settingValue renders a setting as text. Strings are unquoted; other JSON
// values keep their encoding.
func settingValue(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}

// ImagePrefix returns the prefix that turns an Image.Path into a URL. It may
// be absolute or relative to the server origin.
func (s *SiteClient) ImagePrefix(ctx context.Context) (string, error) {
	return s.prefix(ctx, routes.ImagePrefix, "image_prefix")
}

// AvatarPrefix returns the prefix used by AvatarURL.
func (s *SiteClient) AvatarPrefix(ctx context.Context) (string, error) {
	return s.prefix(ctx, routes.AvatarPrefix, "avatar_prefix")
}

func (s *SiteClient) prefix(ctx context.Context, path, field string) (string, error) {
	if s == nil || s.client == nil {
		return "", ConfigError{Reason: "site client not initialized"}
	}
	var resp map[string]json.RawMessage
	if err := s.client.sendJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return settingValue(resp[field]), nil
}

// InitRequest performs first-run setup: the admin account and site identity.
type InitRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	SiteName        string `json:"site_name"`
	SiteDescription string `json:"site_description"`
}

func (r InitRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return ConfigError{Reason: "username is required"}
	}
	if r.Password == "" {
		return ConfigError{Reason: "password is required"}
	}
	return nil
}

// Initialized reports whether first-run setup has been done.
func (s *SiteClient) Initialized(ctx context.Context) (bool, error) {
	if s == nil || s.client == nil {
		return false, ConfigError{Reason: "site client not initialized"}
	}
	var resp struct {
		Initialized bool `json:"initialized"`
	}
	if err := s.client.sendJSON(ctx, http.MethodGet, routes.Init, nil, &resp); err != nil {
		return false, err
	}
	return resp.Initialized, nil
}

// Init runs first-run setup. Empty site fields take DefaultSiteInfo values.
func (s *SiteClient) Init(ctx context.Context, req InitRequest) error {
	if s == nil || s.client == nil {
		return ConfigError{Reason: "site client not initialized"}
	}
	if err := req.Validate(); err != nil {
		return err
	}
	defaults := DefaultSiteInfo()
	if req.SiteName == "" {
		req.SiteName = defaults.Name()
	}
	if req.SiteDescription == "" {
		req.SiteDescription = defaults.Description()
	}
	return s.client.sendJSON(ctx, http.MethodPost, routes.Init, req, nil)
}
