package prover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxOutput bounds the size of an HTTP prover answer.
const maxOutput = 32 << 20

// HTTPProver posts the input to a proving service. A 2xx body is the
// output.
type HTTPProver struct {
	URL    string
	Client *http.Client
}

// NewHTTPProver creates an HTTP prover with the given request timeout.
func NewHTTPProver(url string, timeout time.Duration) *HTTPProver {
	return &HTTPProver{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Prove posts the input.
func (p *HTTPProver) Prove(ctx context.Context, input []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(input))
	if err != nil {
		return nil, &Error{Op: "http", Err: err}
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Op: "http", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOutput+1))
	if err != nil {
		return nil, &Error{Op: "http", Err: fmt.Errorf("read response: %w", err)}
	}
	if len(body) > maxOutput {
		return nil, &Error{Op: "http", Err: fmt.Errorf("response exceeds %d bytes", maxOutput)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Op: "http", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return body, nil
}
