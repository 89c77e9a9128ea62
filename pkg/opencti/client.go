package opencti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout       = 60 * time.Second
	defaultUploadTimeout = 300 * time.Second
	defaultRetryCount    = 3
	defaultRetryWait     = 2 * time.Second
	defaultRetryMaxWait  = 20 * time.Second
)

// Options tunes the platform client. Zero values fall back to defaults.
type Options struct {
	Timeout       time.Duration
	UploadTimeout time.Duration
	RetryCount    int
	RetryWait     time.Duration
	RetryMaxWait  time.Duration
}

// Client talks to the platform GraphQL API.
type Client struct {
	endpoint string
	http     *resty.Client
	upload   *resty.Client
	log      Logger

	mu     sync.Mutex
	labels map[string]string
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type gqlError struct {
	Message string `json:"message"`
}

// New builds a client for baseURL authenticating with a bearer token.
func New(baseURL, token string, opts Options, log Logger) *Client {
	opts = withDefaults(opts)
	log = ensureLogger(log)
	endpoint := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/graphql"

	// Multipart bodies are streamed once, so uploads are not retried.
	uploadOpts := opts
	uploadOpts.RetryCount = 0

	return &Client{
		endpoint: endpoint,
		http:     newRestyClient(token, opts.Timeout, opts, log),
		upload:   newRestyClient(token, opts.UploadTimeout, uploadOpts, log),
		log:      log,
		labels:   make(map[string]string),
	}
}

func withDefaults(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = defaultUploadTimeout
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = defaultRetryCount
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	if opts.RetryMaxWait <= 0 {
		opts.RetryMaxWait = defaultRetryMaxWait
	}
	return opts
}

func newRestyClient(token string, timeout time.Duration, opts Options, log Logger) *resty.Client {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryCondition(retryable).
		AddRetryHook(func(r *resty.Response, err error) {
			meta := map[string]any{}
			if r != nil {
				meta["status"] = r.StatusCode()
			}
			if err != nil {
				meta["error"] = err.Error()
			}
			log.WarnObj("opencti request retry", "opencti_retry", meta)
		})
	if token != "" {
		client.SetAuthToken(token)
	}
	return client
}

func retryable(r *resty.Response, err error) bool {
	if err != nil || r == nil {
		return true
	}
	switch r.StatusCode() {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Query runs a GraphQL document and decodes its data into out (which may be nil).
func (c *Client) Query(ctx context.Context, query string, vars map[string]any, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(gqlRequest{Query: query, Variables: vars}).
		Post(c.endpoint)
	return decodeResponse(resp, err, out)
}

func decodeResponse(resp *resty.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("graphql request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("graphql response status %d: %s", resp.StatusCode(), snippet(resp.Body()))
	}

	var gr gqlResponse
	if err := json.Unmarshal(resp.Body(), &gr); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gr.Errors) > 0 {
		errs := make([]error, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			errs = append(errs, errors.New(e.Message))
		}
		return fmt.Errorf("graphql errors: %w", errors.Join(errs...))
	}
	if out == nil || len(gr.Data) == 0 || string(gr.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

// TestConnection returns the platform version.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	var out struct {
		About struct {
			Version string `json:"version"`
		} `json:"about"`
	}
	if err := c.Query(ctx, aboutQuery, nil, &out); err != nil {
		return "", err
	}
	return out.About.Version, nil
}

// UpdateDescription replaces the description field of an entity.
func (c *Client) UpdateDescription(ctx context.Context, id, text string) error {
	vars := map[string]any{
		"id": id,
		"input": []map[string]any{
			{"key": "description", "value": []string{text}},
		},
	}
	if err := c.Query(ctx, fieldPatchMutation, vars, nil); err != nil {
		return fmt.Errorf("update description of %s: %w", id, err)
	}
	return nil
}

// EnsureLabel creates the label if needed and returns its id. Ids are cached
// for the lifetime of the client.
func (c *Client) EnsureLabel(ctx context.Context, value, color string) (string, error) {
	c.mu.Lock()
	id, ok := c.labels[value]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var out struct {
		LabelAdd struct {
			ID string `json:"id"`
		} `json:"labelAdd"`
	}
	vars := map[string]any{"input": map[string]any{"value": value, "color": color}}
	if err := c.Query(ctx, labelAddMutation, vars, &out); err != nil {
		return "", fmt.Errorf("ensure label %q: %w", value, err)
	}
	if out.LabelAdd.ID == "" {
		return "", fmt.Errorf("ensure label %q: empty id", value)
	}

	c.mu.Lock()
	c.labels[value] = out.LabelAdd.ID
	c.mu.Unlock()
	return out.LabelAdd.ID, nil
}

// AddLabel attaches a label to an entity.
func (c *Client) AddLabel(ctx context.Context, entityID, labelID string) error {
	vars := map[string]any{
		"id": entityID,
		"input": map[string]any{
			"toId":              labelID,
			"relationship_type": "object-label",
		},
	}
	if err := c.Query(ctx, relationAddMutation, vars, nil); err != nil {
		return fmt.Errorf("add label to %s: %w", entityID, err)
	}
	return nil
}

// UploadFile attaches a file to an entity using a GraphQL multipart request.
func (c *Client) UploadFile(ctx context.Context, entityID, name, mime string, data []byte) error {
	ops, err := json.Marshal(gqlRequest{
		Query:     importPushMutation,
		Variables: map[string]any{"id": entityID, "file": nil},
	})
	if err != nil {
		return fmt.Errorf("encode operations: %w", err)
	}

	resp, err := c.upload.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"operations": string(ops),
			"map":        `{"0":["variables.file"]}`,
		}).
		SetMultipartField("0", name, mime, bytes.NewReader(data)).
		Post(c.endpoint)
	if err := decodeResponse(resp, err, nil); err != nil {
		return fmt.Errorf("upload %s to %s: %w", name, entityID, err)
	}
	c.log.DebugObj("file uploaded", "opencti_upload", map[string]any{
		"entity_id": entityID,
		"file":      name,
		"bytes":     len(data),
	})
	return nil
}

func snippet(body []byte) string {
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
