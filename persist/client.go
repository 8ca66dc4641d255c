// Package persist talks to the document persistence collaborator. The engine
// treats it as an external contract: documents are fetched and saved by id,
// and the signing submission endpoint is the single source of truth for
// whether a signer may submit.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/wudi/signkit/fields"
	"github.com/wudi/signkit/observability"
)

// Status is the document lifecycle state.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusSent            Status = "sent"
	StatusPartiallySigned Status = "partially_signed"
	StatusCompleted       Status = "completed"
)

// DocumentPayload is the persisted shape of a document's signing data.
type DocumentPayload struct {
	Fields  []fields.Field  `json:"fields"`
	Signers []fields.Signer `json:"signers"`
	Status  Status          `json:"status"`
}

// SaveError is a recoverable persistence failure: the local model is intact
// and a later explicit save retries.
type SaveError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *SaveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("persist: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persist: %s failed with status %d", e.Op, e.StatusCode)
}

func (e *SaveError) Unwrap() error { return e.Err }

// AccessDeniedError means the signer token or id was rejected by the server.
// Fatal for the signing session.
type AccessDeniedError struct {
	StatusCode int
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("persist: access denied (status %d)", e.StatusCode)
}

// Client is an HTTP client for the persistence contract.
type Client struct {
	base *url.URL
	http *http.Client
	log  observability.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithClientLogger sets the logger.
func WithClientLogger(l observability.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("persist: parse base url: %w", err)
	}
	c := &Client{
		base: u,
		http: http.DefaultClient,
		log:  observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Document fetches a document's fields, signers and status.
func (c *Client) Document(ctx context.Context, id string) (*DocumentPayload, error) {
	var payload DocumentPayload
	if err := c.do(ctx, http.MethodGet, c.path("documents", id), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// PutFields replaces the document's field set.
func (c *Client) PutFields(ctx context.Context, id string, fs []fields.Field) error {
	return c.do(ctx, http.MethodPut, c.path("documents", id, "fields"),
		map[string]interface{}{"fields": fs}, nil)
}

// PutSigners replaces the document's signer list.
func (c *Client) PutSigners(ctx context.Context, id string, signers []fields.Signer) error {
	return c.do(ctx, http.MethodPut, c.path("documents", id, "signers"),
		map[string]interface{}{"signers": signers}, nil)
}

// PutStatus updates the document lifecycle state.
func (c *Client) PutStatus(ctx context.Context, id string, status Status) error {
	return c.do(ctx, http.MethodPut, c.path("documents", id, "status"),
		map[string]interface{}{"status": status}, nil)
}

// Send routes the document for signature.
func (c *Client) Send(ctx context.Context, id string, signers []fields.Signer) error {
	return c.do(ctx, http.MethodPost, c.path("documents", id, "send"),
		map[string]interface{}{"signers": signers}, nil)
}

// Submit performs a signer's final submission. The access token travels as a
// query parameter alongside the signer's email, and the server decides
// whether the signer is authorized.
func (c *Client) Submit(ctx context.Context, documentID, signerEmail, token string, values map[string]string) error {
	p := c.path("sign", documentID, "submit") + "?access_token=" + url.QueryEscape(token)
	err := c.do(ctx, http.MethodPost, p, map[string]interface{}{
		"signerEmail": signerEmail,
		"fieldValues": values,
	}, nil)
	var saveErr *SaveError
	if ok := asSaveError(err, &saveErr); ok {
		switch saveErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return &AccessDeniedError{StatusCode: saveErr.StatusCode}
		}
	}
	return err
}

func asSaveError(err error, target **SaveError) bool {
	if err == nil {
		return false
	}
	se, ok := err.(*SaveError)
	if ok {
		*target = se
	}
	return ok
}

func (c *Client) path(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimSuffix(c.base.String(), "/") + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out interface{}) error {
	op := method + " " + rawURL
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &SaveError{Op: op, Err: err}
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return &SaveError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &SaveError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("persistence call failed",
			observability.String("op", op),
			observability.Int("status", resp.StatusCode))
		return &SaveError{Op: op, StatusCode: resp.StatusCode}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &SaveError{Op: op, Err: err}
		}
	}
	return nil
}
