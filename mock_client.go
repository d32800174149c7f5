package sdk

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/perfectpic/perfectpic/sdk/go/captcha"
)

// MockClient provides in-memory stand-ins for unit tests without hitting the API.
// It currently supports the captcha surface area (Describe/Image).
type MockClient struct {
	Captcha *MockCaptchaClient
}

// MockClientError is returned when a mock client is used without configuration.
type MockClientError struct {
	Reason string
}

func (e MockClientError) Error() string { return "mock client: " + e.Reason }

type mockDescribeResult struct {
	meta captcha.Meta
	err  error
}

type mockImageResult struct {
	img captcha.ImageMeta
	err error
}

// MockCaptchaClient implements captcha.API using preconfigured responses.
// Queued results are consumed in order; the last one repeats once the queue
// is down to it, so a refreshing session keeps getting answers.
type MockCaptchaClient struct {
	mu            sync.Mutex
	describeQueue []mockDescribeResult
	imageQueue    []mockImageResult
	describeCalls int
	imageCalls    int
}

var _ captcha.API = (*MockCaptchaClient)(nil)

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{Captcha: &MockCaptchaClient{}}
}

// WithProvider enqueues a Describe response for provider with the given public
// config, which may be nil.
func (c *MockClient) WithProvider(provider captcha.Provider, publicConfig map[string]any) *MockClient {
	meta := captcha.Meta{}
	meta.Provider, _ = json.Marshal(string(provider))
	if publicConfig != nil {
		meta.PublicConfig, _ = json.Marshal(publicConfig)
	}
	c.Captcha.enqueueDescribe(meta, nil)
	return c
}

// WithDescribeError enqueues an error for the next Describe call.
func (c *MockClient) WithDescribeError(err error) *MockClient {
	c.Captcha.enqueueDescribe(captcha.Meta{}, err)
	return c
}

// WithImage enqueues an image challenge for the next Image call.
func (c *MockClient) WithImage(id, dataURL string) *MockClient {
	c.Captcha.enqueueImage(captcha.ImageMeta{CaptchaID: id, CaptchaImage: dataURL}, nil)
	return c
}

// WithImageError enqueues an error for the next Image call.
func (c *MockClient) WithImageError(err error) *MockClient {
	c.Captcha.enqueueImage(captcha.ImageMeta{}, err)
	return c
}

func (c *MockCaptchaClient) enqueueDescribe(meta captcha.Meta, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.describeQueue = append(c.describeQueue, mockDescribeResult{meta: meta, err: err})
}

func (c *MockCaptchaClient) enqueueImage(img captcha.ImageMeta, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imageQueue = append(c.imageQueue, mockImageResult{img: img, err: err})
}

// Describe returns the next queued config or error.
func (c *MockCaptchaClient) Describe(ctx context.Context) (captcha.Meta, error) {
	if err := ctx.Err(); err != nil {
		return captcha.Meta{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.describeCalls++
	if len(c.describeQueue) == 0 {
		return captcha.Meta{}, MockClientError{Reason: "no captcha config configured"}
	}
	res := c.describeQueue[0]
	if len(c.describeQueue) > 1 {
		c.describeQueue = c.describeQueue[1:]
	}
	return res.meta, res.err
}

// Image returns the next queued challenge or error.
func (c *MockCaptchaClient) Image(ctx context.Context) (captcha.ImageMeta, error) {
	if err := ctx.Err(); err != nil {
		return captcha.ImageMeta{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imageCalls++
	if len(c.imageQueue) == 0 {
		return captcha.ImageMeta{}, MockClientError{Reason: "no captcha image configured"}
	}
	res := c.imageQueue[0]
	if len(c.imageQueue) > 1 {
		c.imageQueue = c.imageQueue[1:]
	}
	return res.img, res.err
}

// Calls reports how many Describe and Image calls the mock has served.
func (c *MockCaptchaClient) Calls() (describe, image int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.describeCalls, c.imageCalls
}
