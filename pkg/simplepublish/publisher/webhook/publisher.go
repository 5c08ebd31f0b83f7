package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

// Publisher implements simplepublish.Publisher by POSTing the publish
// request as JSON to a configured endpoint. It performs exactly one HTTP
// call per Publish; retries and circuit breaking belong to the executor.
type Publisher struct {
	target string
	url    string
	token  string
	client *http.Client
}

// Option configures the publisher
type Option func(*Publisher)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(p *Publisher) {
		if client != nil {
			p.client = client
		}
	}
}

// WithBearerToken adds an Authorization header to every request
func WithBearerToken(token string) Option {
	return func(p *Publisher) {
		p.token = token
	}
}

// New creates a webhook publisher for the given target name and endpoint
func New(target, url string, opts ...Option) *Publisher {
	p := &Publisher{
		target: simplepublish.NormalizeTarget(target),
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Target returns the target name this publisher serves
func (p *Publisher) Target() string {
	return p.target
}

// receiverResponse is the optional body a webhook receiver may return to
// report where the content ended up.
type receiverResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Publish delivers the request to the endpoint. Remote status failures come
// back as *simplepublish.HTTPError so the executor can classify them.
func (p *Publisher) Publish(ctx context.Context, req simplepublish.PublishRequest) (*simplepublish.PublishOutcome, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &simplepublish.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	// The receiver may report a remote reference; an empty body is fine.
	var remote receiverResponse
	_ = json.NewDecoder(resp.Body).Decode(&remote)

	return &simplepublish.PublishOutcome{
		Target:    p.target,
		Success:   true,
		RemoteID:  remote.ID,
		RemoteURL: remote.URL,
	}, nil
}
