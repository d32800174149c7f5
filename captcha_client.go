package sdk

import (
	"context"
	"net/http"

	"github.com/perfectpic/perfectpic/sdk/go/captcha"
	"github.com/perfectpic/perfectpic/sdk/go/routes"
)

// CaptchaClient reads the public captcha configuration. It implements
// captcha.API, so a Session can be driven straight from it.
type CaptchaClient struct {
	client *Client
}

var _ captcha.API = (*CaptchaClient)(nil)

func (c *CaptchaClient) ensureInitialized() error {
	if c == nil || c.client == nil {
		return ConfigError{Reason: "captcha client not initialized"}
	}
	return nil
}

// Describe returns the active provider and its public config. The fields are
// passed through raw; captcha.ResolveProvider and captcha.NormalizePublicConfig
// apply the lenient interpretation.
func (c *CaptchaClient) Describe(ctx context.Context) (captcha.Meta, error) {
	if err := c.ensureInitialized(); err != nil {
		return captcha.Meta{}, err
	}
	var meta captcha.Meta
	if err := c.client.sendJSON(ctx, http.MethodGet, routes.Captcha, nil, &meta); err != nil {
		return captcha.Meta{}, err
	}
	return meta, nil
}

// Image requests a fresh image challenge.
func (c *CaptchaClient) Image(ctx context.Context) (captcha.ImageMeta, error) {
	if err := c.ensureInitialized(); err != nil {
		return captcha.ImageMeta{}, err
	}
	var img captcha.ImageMeta
	if err := c.client.sendJSON(ctx, http.MethodGet, routes.CaptchaImage, nil, &img); err != nil {
		return captcha.ImageMeta{}, err
	}
	return img, nil
}

// NewSession returns a captcha session backed by this client.
func (c *CaptchaClient) NewSession(opts ...captcha.SessionOption) *captcha.Session {
	if c != nil && c.client != nil {
		opts = append([]captcha.SessionOption{captcha.WithTelemetry(c.client.telemetry)}, opts...)
	}
	return captcha.NewSession(c, opts...)
}
