package simplepublish

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-publish library
type Service interface {
	// Item operations
	Submit(ctx context.Context, req SubmitRequest) (*Item, error)
	UpdateContent(ctx context.Context, id uuid.UUID, payload Payload) (*Item, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Item(ctx context.Context, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]*Item, error)

	// Compatibility operations
	TestReadiness(ctx context.Context, id uuid.UUID) (map[string]TestResult, error)
	BestTargets(ctx context.Context, payload Payload, targets []string) ([]TargetScore, error)
	NextOptimalTime(ctx context.Context, targets []string) (time.Time, error)

	// Publishing operations
	PublishNow(ctx context.Context, id uuid.UUID) (*BatchResult, error)
	Tick(ctx context.Context) (*TickResult, error)
	PublishAllReady(ctx context.Context, opts BatchOptions) (*BatchResult, error)

	// Operational visibility
	Status(ctx context.Context) (*StatusReport, error)
	ResetBreaker(ctx context.Context, target string) error
}
