package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/perfectpic/perfectpic/sdk/go/routes"
)

// Image is a stored upload. UserID and Username are only filled in admin
// listings.
type Image struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	UploadedAt int64  `json:"uploaded_at"`
	UserID     int64  `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
}

// Uploaded returns UploadedAt (unix seconds) as a time.
func (i Image) Uploaded() time.Time { return time.Unix(i.UploadedAt, 0) }

// ImagePage is one page of an image listing.
type ImagePage struct {
	Images []Image
	Total  int64
}

// ImageListOptions filters the signed-in user's images. Zero values are
// omitted from the query.
type ImageListOptions struct {
	Page     int
	PageSize int
	Filename string
	ID       int64
}

func (o ImageListOptions) values() url.Values {
	params := pageValues(o.Page, o.PageSize)
	if o.Filename != "" {
		params.Set("filename", o.Filename)
	}
	if o.ID > 0 {
		params.Set("id", strconv.FormatInt(o.ID, 10))
	}
	return params
}

// UploadResult is the stored image returned by Upload. URL is relative to the
// server origin.
type UploadResult struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// ImageClient manages the signed-in user's images.
type ImageClient struct {
	client *Client
}

func (c *ImageClient) ensureInitialized() error {
	if c == nil || c.client == nil {
		return ConfigError{Reason: "image client not initialized"}
	}
	return nil
}

// List returns one page of the user's images.
func (c *ImageClient) List(ctx context.Context, opts ImageListOptions) (ImagePage, error) {
	if err := c.ensureInitialized(); err != nil {
		return ImagePage{}, err
	}
	var raw json.RawMessage
	if err := c.client.sendJSON(ctx, http.MethodGet, withQuery(routes.UserImages, opts.values()), nil, &raw); err != nil {
		return ImagePage{}, err
	}
	return decodeImagePage(raw)
}

// Count returns how many images the user owns.
func (c *ImageClient) Count(ctx context.Context) (int64, error) {
	if err := c.ensureInitialized(); err != nil {
		return 0, err
	}
	var resp struct {
		ImageCount int64 `json:"image_count"`
	}
	if err := c.client.sendJSON(ctx, http.MethodGet, routes.UserImagesCount, nil, &resp); err != nil {
		return 0, err
	}
	return resp.ImageCount, nil
}

// Upload stores content as a new image.
func (c *ImageClient) Upload(ctx context.Context, filename string, content io.Reader) (UploadResult, error) {
	if err := c.ensureInitialized(); err != nil {
		return UploadResult{}, err
	}
	var out UploadResult
	if err := c.client.sendMultipart(ctx, http.MethodPost, routes.UserUpload, filename, content, &out); err != nil {
		return UploadResult{}, err
	}
	return out, nil
}

// Delete removes one of the user's images.
func (c *ImageClient) Delete(ctx context.Context, id int64) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if id <= 0 {
		return ConfigError{Reason: "image id is required"}
	}
	return c.client.sendJSON(ctx, http.MethodDelete, withID(routes.UserImageByID, id), nil, nil)
}

// DeleteBatch removes several of the user's images in one request.
func (c *ImageClient) DeleteBatch(ctx context.Context, ids []int64) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return ConfigError{Reason: "image ids are required"}
	}
	return c.client.sendJSON(ctx, http.MethodDelete, routes.UserImagesBatch, batchIDs{IDs: ids}, nil)
}

type batchIDs struct {
	IDs []int64 `json:"ids"`
}

// decodeImagePage accepts {"list": [...]}, {"data": [...]} or a bare array.
func decodeImagePage(raw json.RawMessage) (ImagePage, error) {
	var page ImagePage
	if err := json.Unmarshal(raw, &page.Images); err == nil {
		page.Total = int64(len(page.Images))
		return page, nil
	}
	var wrapped struct {
		List  []Image `json:"list"`
		Data  []Image `json:"data"`
		Total int64   `json:"total"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return ImagePage{}, fmt.Errorf("sdk: decode image list: %w", err)
	}
	page.Images = wrapped.List
	if page.Images == nil {
		page.Images = wrapped.Data
	}
	page.Total = wrapped.Total
	return page, nil
}

func pageValues(page, pageSize int) url.Values {
	params := url.Values{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		params.Set("page_size", strconv.Itoa(pageSize))
	}
	return params
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

func withID(route string, id int64) string {
	return strings.ReplaceAll(route, "{id}", url.PathEscape(strconv.FormatInt(id, 10)))
}
