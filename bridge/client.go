// Package bridge implements the Core↔Periphery HTTP+WS client (spec.md
// §4.10): JSON POST requests with a passkey header, the two-stage
// WebSocket upgrade for PTY/terminal sessions, and TLS with self-signed
// support. Grounded on original_source/bin/core/src/network/mod.rs and
// client/core/rs/src/api/pty.rs for the upgrade choreography and binary
// discriminator wire format.
package bridge

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls one Periphery agent's typed request API.
type Client struct {
	BaseURL string
	Passkey string
	HTTP    *http.Client
}

// NewClient builds a client; when insecureTLS is set the HTTP transport
// accepts self-signed certs, mirroring Periphery's own auto-generated
// certificate (spec.md §4.10 "TLS").
func NewClient(baseURL, passkey string, timeout time.Duration, insecureTLS bool) *Client {
	transport := &http.Transport{}
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // spec.md §4.10: periphery self-signs, client must accept
	}
	return &Client{
		BaseURL: baseURL,
		Passkey: passkey,
		HTTP:    &http.Client{Transport: transport, Timeout: timeout},
	}
}

type requestEnvelope struct {
	Type   string      `json:"type"`
	Params interface{} `json:"params"`
}

// errorDocument mirrors periphery/dispatch's error body shape.
type errorDocument struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Call POSTs a typed request and decodes the JSON response into result.
func (c *Client) Call(ctx context.Context, reqType string, params interface{}, result interface{}) error {
	body, err := json.Marshal(requestEnvelope{Type: reqType, Params: params})
	if err != nil {
		return fmt.Errorf("bridge: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bridge: build request: %w", err)
	}
	req.Header.Set("authorization", c.Passkey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: %s: %w", reqType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errDoc errorDocument
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &errDoc) == nil && errDoc.Message != "" {
			return fmt.Errorf("bridge: %s: upstream %d: %s", reqType, resp.StatusCode, errDoc.Message)
		}
		return fmt.Errorf("bridge: %s: upstream status %d", reqType, resp.StatusCode)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("bridge: %s: decode response: %w", reqType, err)
	}
	return nil
}

// GetVersion calls Periphery's GetVersion request variant.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.Call(ctx, "GetVersion", struct{}{}, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}
