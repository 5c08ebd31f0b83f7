package wordpress_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/publisher/wordpress"
)

func publishReq() simplepublish.PublishRequest {
	return simplepublish.PublishRequest{
		ItemID:         uuid.New(),
		Target:         "wordpress",
		IdempotencyKey: "k1",
		Payload: simplepublish.Payload{
			Kind:    simplepublish.KindArticle,
			Title:   "Launch day",
			Body:    "<p>We are live.</p>",
			Excerpt: "We are live.",
		},
	}
}

func TestWordPressPublisher_Defaults(t *testing.T) {
	pub := wordpress.New("https://blog.example.com/", "editor", "app-pass")
	assert.Equal(t, "wordpress", pub.Target())

	renamed := wordpress.New("https://blog.example.com", "editor", "app-pass", wordpress.WithTarget(" Company Blog "))
	assert.Equal(t, "company blog", renamed.Target())
}

func TestWordPressPublisher_CreatesPublishedPost(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "editor", user)
		assert.Equal(t, "app-pass", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   123,
			"link": "https://blog.example.com/?p=123",
		})
	}))
	defer server.Close()

	// Trailing slash on the base URL must not double up in the path.
	pub := wordpress.New(server.URL+"/", "editor", "app-pass")
	out, err := pub.Publish(context.Background(), publishReq())
	require.NoError(t, err)

	assert.Equal(t, "/wp-json/wp/v2/posts", gotPath)
	assert.Equal(t, "Launch day", gotBody["title"])
	assert.Equal(t, "<p>We are live.</p>", gotBody["content"])
	assert.Equal(t, "We are live.", gotBody["excerpt"])
	assert.Equal(t, "publish", gotBody["status"])

	assert.True(t, out.Success)
	assert.Equal(t, "wordpress", out.Target)
	assert.Equal(t, "123", out.RemoteID)
	assert.Equal(t, "https://blog.example.com/?p=123", out.RemoteURL)
}

func TestWordPressPublisher_AuthFailureBecomesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"rest_cannot_create"}`, http.StatusForbidden)
	}))
	defer server.Close()

	pub := wordpress.New(server.URL, "editor", "wrong-pass")
	_, err := pub.Publish(context.Background(), publishReq())
	require.Error(t, err)

	var httpErr *simplepublish.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "rest_cannot_create")
}

func TestWordPressPublisher_MalformedResponseIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	pub := wordpress.New(server.URL, "editor", "app-pass")
	_, err := pub.Publish(context.Background(), publishReq())
	assert.Error(t, err)
}
