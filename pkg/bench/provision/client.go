// Package provision performs the remote setup sequence that makes an
// externally sourced agent resource addressable by the benchmark: create a
// secret wrapping the caller's credential, import the resource through that
// secret, and configure the fresh import for benchmarking.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// APIError is a non-2xx response from the remote API. The body is kept
// verbatim apart from credential redaction so remote diagnostics survive.
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// IsNotFound reports whether the error is an HTTP 404 from the remote API.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}

// ImportMismatchError indicates the remote echoed a different import ID than
// requested. The import is never silently substituted.
type ImportMismatchError struct {
	Requested string
	Returned  string
}

func (e *ImportMismatchError) Error() string {
	return fmt.Sprintf("import mismatch: requested %q, remote returned %q", e.Requested, e.Returned)
}

// Resource is one imported remote resource.
type Resource struct {
	ID         string
	Name       string
	ImportID   string
	ImportedAt time.Time
}

// Client is an authenticated HTTP client for the remote API.
type Client struct {
	base       string
	token      string
	credential string
	httpc      *http.Client
}

// NewClient creates a client for the given API base URL. token authenticates
// requests; credential is the caller's external credential, redacted from
// any error body it might be echoed into.
func NewClient(base, token, credential string) *Client {
	return &Client{
		base:       strings.TrimRight(base, "/"),
		token:      token,
		credential: credential,
		httpc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateSecret creates a remote secret wrapping the external credential and
// returns its reference handle.
func (c *Client) CreateSecret(ctx context.Context, name string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/secrets", map[string]any{
		"name":  name,
		"token": c.credential,
	})
	if err != nil {
		return "", err
	}
	ref := gjson.GetBytes(body, "id").String()
	if ref == "" {
		return "", fmt.Errorf("create-secret response missing id: %s", redact(string(body), c.credential, c.token))
	}
	return ref, nil
}

// Import requests import of one external identifier through the secret and
// returns the resulting resource. The returned import metadata must echo the
// requested identifier; a mismatch is a hard failure.
func (c *Client) Import(ctx context.Context, provider, secretRef, importID string) (Resource, error) {
	body, err := c.do(ctx, http.MethodPost, "/imports", map[string]any{
		"provider":   provider,
		"secret_ref": secretRef,
		"import_ids": []string{importID},
	})
	if err != nil {
		return Resource{}, err
	}

	entries := gjson.GetBytes(body, "resources").Array()
	if len(entries) == 0 {
		return Resource{}, fmt.Errorf("import response contained no resources: %s", redact(string(body), c.credential, c.token))
	}
	entry := entries[0]

	res := Resource{
		ID:       entry.Get("id").String(),
		Name:     entry.Get("name").String(),
		ImportID: entry.Get("import_metadata.import_id").String(),
	}
	if ts := entry.Get("import_metadata.imported_at").String(); ts != "" {
		importedAt, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return Resource{}, fmt.Errorf("parsing imported_at %q: %w", ts, err)
		}
		res.ImportedAt = importedAt
	}

	if res.ImportID != importID {
		return Resource{}, &ImportMismatchError{Requested: importID, Returned: res.ImportID}
	}
	return res, nil
}

// UpdateResource applies a partial update to the resource.
func (c *Client) UpdateResource(ctx context.Context, id string, patch map[string]any) error {
	_, err := c.do(ctx, http.MethodPatch, "/resources/"+id, patch)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload map[string]any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s %s request: %w", method, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Status: resp.StatusCode,
			Method: method,
			Path:   path,
			Body:   redact(string(body), c.credential, c.token),
		}
	}
	return body, nil
}

// redact removes credential material from remote error bodies before they
// are surfaced in logs or errors.
func redact(body string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		body = strings.ReplaceAll(body, s, "[redacted]")
	}
	return body
}
