package s3

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-publish/pkg/simplepublish"
)

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}

func TestNew_AppliesDefaults(t *testing.T) {
	pub, err := New(context.Background(), Config{Bucket: "published-content"})
	require.NoError(t, err)

	assert.Equal(t, "s3", pub.Target())
	assert.Equal(t, "us-east-1", pub.config.Region)
	assert.NotNil(t, pub.config.KeyFunc)
}

func TestNew_NormalizesTarget(t *testing.T) {
	pub, err := New(context.Background(), Config{Bucket: "published-content", Target: " Archive "})
	require.NoError(t, err)
	assert.Equal(t, "archive", pub.Target())
}

func TestDefaultKey(t *testing.T) {
	id := uuid.New()
	key := defaultKey(simplepublish.PublishRequest{ItemID: id, Target: "archive"})
	assert.Equal(t, "items/"+id.String()+"/archive.json", key)
}

func TestRemoteURL(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name:   "public base URL wins",
			config: Config{Bucket: "content", Region: "eu-west-1", PublicBaseURL: "https://cdn.example.com/", Endpoint: "https://minio.local"},
			want:   "https://cdn.example.com/items/abc/s3.json",
		},
		{
			name:   "custom endpoint is path style",
			config: Config{Bucket: "content", Region: "eu-west-1", Endpoint: "https://minio.local"},
			want:   "https://minio.local/content/items/abc/s3.json",
		},
		{
			name:   "plain AWS layout",
			config: Config{Bucket: "content", Region: "eu-west-1"},
			want:   "https://content.s3.eu-west-1.amazonaws.com/items/abc/s3.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Publisher{config: tt.config}
			assert.Equal(t, tt.want, p.remoteURL("items/abc/s3.json"))
		})
	}
}
