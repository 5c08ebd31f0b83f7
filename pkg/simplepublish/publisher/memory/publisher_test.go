package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/publisher/memory"
)

func publishReq(key string) simplepublish.PublishRequest {
	return simplepublish.PublishRequest{
		ItemID:         uuid.New(),
		Target:         "blog",
		IdempotencyKey: key,
		Payload:        simplepublish.Payload{Kind: simplepublish.KindPost, Body: "hello"},
	}
}

func TestMemoryPublisher_TargetNormalization(t *testing.T) {
	pub := memory.New("  Blog ")
	assert.Equal(t, "blog", pub.Target())
}

func TestMemoryPublisher_PublishGeneratesRemoteReferences(t *testing.T) {
	ctx := context.Background()
	pub := memory.New("blog", memory.WithBaseURL("https://cms.test"))

	out, err := pub.Publish(ctx, publishReq("item-1:blog"))
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "blog", out.Target)
	assert.Equal(t, "blog-1", out.RemoteID)
	assert.Equal(t, "https://cms.test/blog/1", out.RemoteURL)

	out, err = pub.Publish(ctx, publishReq("item-2:blog"))
	require.NoError(t, err)
	assert.Equal(t, "blog-2", out.RemoteID)
	assert.Equal(t, 2, pub.Published())
}

func TestMemoryPublisher_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	pub := memory.New("blog")
	req := publishReq("item-1:blog")

	first, err := pub.Publish(ctx, req)
	require.NoError(t, err)
	second, err := pub.Publish(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.RemoteID, second.RemoteID)
	assert.Equal(t, first.RemoteURL, second.RemoteURL)
	// Replay does not mint a new delivery, but every call is recorded.
	assert.Equal(t, 1, pub.Published())
	assert.Len(t, pub.Requests(), 2)
}

func TestMemoryPublisher_FailNextQueueIsConsumedInOrder(t *testing.T) {
	ctx := context.Background()
	pub := memory.New("blog")

	errA := errors.New("first failure")
	errB := errors.New("second failure")
	pub.FailNext(errA, 1)
	pub.FailNext(errB, 1)

	_, err := pub.Publish(ctx, publishReq("k1"))
	assert.Equal(t, errA, err)
	_, err = pub.Publish(ctx, publishReq("k2"))
	assert.Equal(t, errB, err)

	out, err := pub.Publish(ctx, publishReq("k3"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, pub.Published())
	assert.Len(t, pub.Requests(), 3)
}

func TestMemoryPublisher_ReplayBeatsQueuedFailures(t *testing.T) {
	ctx := context.Background()
	pub := memory.New("blog")
	req := publishReq("sticky")

	_, err := pub.Publish(ctx, req)
	require.NoError(t, err)

	// A queued failure must not break replay of a delivered key.
	pub.FailNext(errors.New("boom"), 1)
	out, err := pub.Publish(ctx, req)
	require.NoError(t, err)
	assert.True(t, out.Success)

	_, err = pub.Publish(ctx, publishReq("fresh"))
	assert.Error(t, err)
}

func TestMemoryPublisher_LatencyHonorsCancellation(t *testing.T) {
	pub := memory.New("blog", memory.WithLatency(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := pub.Publish(ctx, publishReq("k1"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
