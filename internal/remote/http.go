package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/talentflow/offlinecache/internal/common"
	"github.com/talentflow/offlinecache/internal/models"
)

// HTTPBackend talks JSON to a REST-style backend:
//
//	POST   {base}/{collection}        insert
//	PUT    {base}/{collection}/{id}   update
//	DELETE {base}/{collection}/{id}   delete
//	GET    {base}/{collection}/{id}   fetch
//
// Each successful response body is the record as a JSON object carrying at
// least "id" and "updated_at" (RFC 3339).
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) Insert(ctx context.Context, t models.EntityType, payload map[string]any) (*Record, error) {
	return b.sendRecord(ctx, http.MethodPost, b.collectionURL(t, ""), payload)
}

func (b *HTTPBackend) Update(ctx context.Context, t models.EntityType, id string, payload map[string]any) (*Record, error) {
	return b.sendRecord(ctx, http.MethodPut, b.collectionURL(t, id), payload)
}

func (b *HTTPBackend) Delete(ctx context.Context, t models.EntityType, id string) error {
	resp, err := b.send(ctx, http.MethodDelete, b.collectionURL(t, id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (b *HTTPBackend) FetchByID(ctx context.Context, t models.EntityType, id string) (*Record, error) {
	return b.sendRecord(ctx, http.MethodGet, b.collectionURL(t, id), nil)
}

func (b *HTTPBackend) sendRecord(ctx context.Context, method, target string, payload map[string]any) (*Record, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	resp, err := b.send(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return recordFromFields(fields)
}

func (b *HTTPBackend) send(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	return resp, nil
}

func (b *HTTPBackend) collectionURL(t models.EntityType, id string) string {
	u := b.baseURL + "/" + t.Table()
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return common.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote returned %s: %s", resp.Status, string(snippet))
	}
	return nil
}

// recordFromFields pulls id and updated_at out of a decoded response body.
func recordFromFields(fields map[string]any) (*Record, error) {
	id, _ := fields["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("remote record is missing an id")
	}

	rec := &Record{ID: id, Fields: fields}
	if raw, ok := fields["updated_at"].(string); ok {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at %q: %w", raw, err)
		}
		rec.UpdatedAt = ts
	}
	return rec, nil
}
