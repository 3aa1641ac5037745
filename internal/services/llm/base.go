// Package llm holds the clients for the OpenAI-compatible generation and
// embedding endpoints, plus a local hashing embedder.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	xhttp "FinPulse/pkg/http"
)

// HTTPServiceBase centralizes client construction, bearer auth and JSON calls
// for the provider clients in this package.
type HTTPServiceBase struct {
	baseURL string
	apiKey  string
	client  *xhttp.Client
}

func NewHTTPServiceBase(baseURL, apiKey string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (b *HTTPServiceBase) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if b.apiKey != "" {
		h["Authorization"] = "Bearer " + b.apiKey
	}
	return h
}

// PostJSON posts payload to path under baseURL and decodes the JSON answer into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("llm http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: b.headers(),
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// GetJSON issues a GET to path under baseURL. A nil dest discards the body.
func (b *HTTPServiceBase) GetJSON(ctx context.Context, path string, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("llm http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     b.baseURL + path,
		Headers: b.headers(),
	}, dest)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}
