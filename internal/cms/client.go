// Package cms is a REST client for the headless content backend that acts as
// the system of record. It speaks the Directus items/files API.
package cms

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/metrics"
)

const maxResponseBytes = 32 << 20

// ErrUnreachable is returned when every configured endpoint failed at the
// transport level.
var ErrUnreachable = errors.New("cms: no backend endpoint reachable")

// Error is a definitive HTTP response from the backend with a non-2xx status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cms: backend returned %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURLs  []string
	Token     string
	Timeout   time.Duration
	VerifyTLS bool
}

type Client struct {
	bases   []string
	token   string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger

	// index of the endpoint that last produced a response, -1 when unknown
	preferred atomic.Int64
}

// File is a downloaded asset.
type File struct {
	ContentType string
	Data        []byte
}

type response struct {
	status      int
	contentType string
	body        []byte
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	var bases []string
	for _, b := range cfg.BaseURLs {
		b = strings.TrimRight(strings.TrimSpace(b), "/")
		if b != "" {
			bases = append(bases, b)
		}
	}
	if len(bases) == 0 {
		return nil, errors.New("cms: at least one base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed internal endpoints
	}

	c := &Client{
		bases:   bases,
		token:   cfg.Token,
		timeout: timeout,
		http:    &http.Client{Transport: otelhttp.NewTransport(transport)},
		logger:  logger,
	}
	c.preferred.Store(-1)
	return c, nil
}

// Eq adds a filter[field][_eq]=value parameter.
func Eq(params url.Values, field, value string) {
	params.Set(fmt.Sprintf("filter[%s][_eq]", field), value)
}

// ListItems returns the raw records of a collection matching params.
func (c *Client) ListItems(ctx context.Context, collection string, params url.Values) ([]json.RawMessage, error) {
	path := "/items/" + url.PathEscape(collection)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.body, &envelope); err != nil {
		return nil, fmt.Errorf("cms: decode %s list: %w", collection, err)
	}
	return envelope.Data, nil
}

// CreateItem inserts a record and returns the stored representation.
func (c *Client) CreateItem(ctx context.Context, collection string, item interface{}) (json.RawMessage, error) {
	return c.writeItem(ctx, http.MethodPost, "/items/"+url.PathEscape(collection), item)
}

// UpdateItem applies a partial update to one record.
func (c *Client) UpdateItem(ctx context.Context, collection, id string, patch interface{}) (json.RawMessage, error) {
	return c.writeItem(ctx, http.MethodPatch, "/items/"+url.PathEscape(collection)+"/"+url.PathEscape(id), patch)
}

func (c *Client) writeItem(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cms: encode payload: %w", err)
	}

	resp, err := c.do(ctx, method, path, body, "application/json")
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if len(resp.body) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(resp.body, &envelope); err != nil {
		return nil, fmt.Errorf("cms: decode response: %w", err)
	}
	return envelope.Data, nil
}

// UploadFile stores a file and returns its opaque identifier.
func (c *Client) UploadFile(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("cms: build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("cms: read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("cms: build upload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/files", buf.Bytes(), mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.body, &envelope); err != nil {
		return "", fmt.Errorf("cms: decode upload response: %w", err)
	}
	if envelope.Data.ID == "" {
		return "", errors.New("cms: upload response carried no file id")
	}
	return envelope.Data.ID, nil
}

// DownloadFile fetches the raw bytes of an uploaded asset.
func (c *Client) DownloadFile(ctx context.Context, id string) (*File, error) {
	resp, err := c.do(ctx, http.MethodGet, "/assets/"+url.PathEscape(id), nil, "")
	if err != nil {
		return nil, err
	}
	return &File{ContentType: resp.contentType, Data: resp.body}, nil
}

// Ping reports whether any endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/server/ping", nil, "")
	return err
}

// order lists endpoint indexes, the remembered one first.
func (c *Client) order() []int {
	idx := make([]int, 0, len(c.bases))
	pref := int(c.preferred.Load())
	if pref >= 0 && pref < len(c.bases) {
		idx = append(idx, pref)
	}
	for i := range c.bases {
		if i != pref {
			idx = append(idx, i)
		}
	}
	return idx
}

// do tries each endpoint until one produces an HTTP response. A transport
// failure moves on to the next candidate; any response, whatever its status,
// ends the search.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*response, error) {
	start := time.Now()
	defer func() {
		metrics.RecordBackendRequestDuration(method, time.Since(start).Seconds())
	}()

	var lastErr error
	for _, i := range c.order() {
		base := c.bases[i]

		resp, err := c.attempt(ctx, method, base+path, body, contentType)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.preferred.CompareAndSwap(int64(i), -1)
			metrics.IncrementBackendRequests(base, "transport_error")
			c.logger.Warn("Backend endpoint unreachable",
				zap.String("endpoint", base),
				zap.String("method", method),
				zap.Error(err))
			lastErr = err
			continue
		}

		c.preferred.Store(int64(i))
		metrics.IncrementBackendRequests(base, "response")

		if resp.status < 200 || resp.status > 299 {
			return nil, &Error{StatusCode: resp.status, Message: errorMessage(resp)}
		}
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

func (c *Client) attempt(ctx context.Context, method, target string, body []byte, contentType string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	return &response{
		status:      res.StatusCode,
		contentType: res.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

func errorMessage(resp *response) string {
	var envelope struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.body, &envelope); err == nil && len(envelope.Errors) > 0 && envelope.Errors[0].Message != "" {
		return envelope.Errors[0].Message
	}
	if text := http.StatusText(resp.status); text != "" {
		return text
	}
	return "unexpected response"
}
