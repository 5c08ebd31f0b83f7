package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

const maxErrorBody = 4 << 10

// Publisher implements simplepublish.Publisher against the WordPress REST
// API (wp/v2). Authentication uses an application password over basic auth.
type Publisher struct {
	target   string
	baseURL  string
	username string
	password string
	client   *http.Client
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

// WithTarget overrides the default "wordpress" target name
func WithTarget(target string) Option {
	return func(p *Publisher) {
		p.target = simplepublish.NormalizeTarget(target)
	}
}

// New creates a WordPress publisher. baseURL is the site root, e.g.
// "https://blog.example.com"; username and appPassword are a WordPress
// application password pair.
func New(baseURL, username, appPassword string, opts ...Option) *Publisher {
	p := &Publisher{
		target:   "wordpress",
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: appPassword,
		client:   &http.Client{Timeout: 15 * time.Second},
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

// postRequest is the wp/v2 create-post body. Tags are omitted because the
// REST API wants term IDs, not names.
type postRequest struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt,omitempty"`
	Status  string `json:"status"`
}

type postResponse struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

// Publish creates a published post from the payload
func (p *Publisher) Publish(ctx context.Context, req simplepublish.PublishRequest) (*simplepublish.PublishOutcome, error) {
	body := postRequest{
		Title:   req.Payload.Title,
		Content: req.Payload.Body,
		Excerpt: req.Payload.Excerpt,
		Status:  "publish",
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := p.baseURL + "/wp-json/wp/v2/posts"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(p.username, p.password)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &simplepublish.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(errBody),
		}
	}

	var post postResponse
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil {
		return nil, err
	}

	return &simplepublish.PublishOutcome{
		Target:    p.target,
		Success:   true,
		RemoteID:  strconv.Itoa(post.ID),
		RemoteURL: post.Link,
	}, nil
}
