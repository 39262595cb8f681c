package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transport sends one request to a peer and returns the response body.
// addr is a base URL such as "http://127.0.0.1:5000".
type Transport interface {
	Send(ctx context.Context, addr, path, method string, payload []byte) ([]byte, error)
}

// maxResponseBytes bounds how much of a peer's answer is read.
const maxResponseBytes = 16 << 20

// HTTPTransport is the Transport used between processes.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns a transport whose client gives up after timeout.
// A zero timeout leaves deadlines entirely to the request context.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Send(ctx context.Context, addr, path, method string, payload []byte) ([]byte, error) {
	url := strings.TrimRight(addr, "/") + path

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, url, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransport, url, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// errorMessage extracts the message of an error envelope, falling back to the
// raw body for peers that answer in plain text.
func errorMessage(data []byte) string {
	var r Response
	if err := json.Unmarshal(data, &r); err == nil && r.Error != "" {
		return r.Error
	}
	return strings.TrimSpace(string(data))
}

// SendJSON marshals body (nil for no body), sends it and decodes the answer
// into out (nil to discard it).
func SendJSON(ctx context.Context, t Transport, addr, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}
	data, err := t.Send(ctx, addr, path, method, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s%s: %w", ErrTransport, addr, path, err)
	}
	return nil
}
