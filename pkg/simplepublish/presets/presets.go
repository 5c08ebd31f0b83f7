package presets

import (
	"fmt"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
	memorypub "github.com/tendant/simple-publish/pkg/simplepublish/publisher/memory"
	memorystore "github.com/tendant/simple-publish/pkg/simplepublish/store/memory"
)

// Platform Presets
//
// This package provides built-in publishing rules and engagement windows for
// common platforms, plus pre-configured services for development and tests.
// Values follow the platforms' documented limits; engagement windows are
// editorial-calendar defaults and worth tuning per audience.

var rules = map[string]simplepublish.TargetRules{
	"wordpress": {
		MaxTags: 15,
		SupportedKinds: []simplepublish.ContentKind{
			simplepublish.KindPost,
			simplepublish.KindArticle,
			simplepublish.KindImage,
			simplepublish.KindVideo,
		},
	},
	"medium": {
		MaxTitleLen:    100,
		MaxTags:        5,
		RequiredFields: []string{"title"},
		SupportedKinds: []simplepublish.ContentKind{
			simplepublish.KindPost,
			simplepublish.KindArticle,
		},
	},
	"ghost": {
		MaxTitleLen:    255,
		MaxExcerptLen:  300,
		RequiredFields: []string{"title"},
		SupportedKinds: []simplepublish.ContentKind{
			simplepublish.KindPost,
			simplepublish.KindArticle,
			simplepublish.KindImage,
		},
	},
	"devto": {
		MaxTitleLen:    128,
		MaxTags:        4,
		RequiredFields: []string{"title"},
		SupportedKinds: []simplepublish.ContentKind{
			simplepublish.KindPost,
			simplepublish.KindArticle,
		},
	},
	"linkedin": {
		MaxTitleLen: 200,
		MaxBodyLen:  3000,
		MaxImages:   9,
		SupportedKinds: []simplepublish.ContentKind{
			simplepublish.KindPost,
			simplepublish.KindArticle,
			simplepublish.KindImage,
			simplepublish.KindVideo,
		},
		ImageFirst: true,
	},
	"twitter": {
		MaxBodyLen: 280,
		MaxImages:  4,
		SupportedKinds: []simplepublish.ContentKind{
			simplepublish.KindPost,
			simplepublish.KindImage,
			simplepublish.KindVideo,
		},
		ImageFirst: true,
	},
	"mastodon": {
		MaxBodyLen: 500,
		MaxImages:  4,
		SupportedKinds: []simplepublish.ContentKind{
			simplepublish.KindPost,
			simplepublish.KindImage,
			simplepublish.KindVideo,
		},
	},
}

// slots are recurring engagement windows in UTC. Engagement is a relative
// score; only its ordering matters.
var slots = map[string][]simplepublish.TimeSlot{
	"wordpress": {
		{Weekday: time.Monday, Hour: 14, Engagement: 0.7},
		{Weekday: time.Thursday, Hour: 14, Engagement: 0.75},
	},
	"medium": {
		{Weekday: time.Saturday, Hour: 13, Engagement: 0.8},
		{Weekday: time.Sunday, Hour: 13, Engagement: 0.85},
	},
	"ghost": {
		{Weekday: time.Tuesday, Hour: 9, Engagement: 0.7},
	},
	"devto": {
		{Weekday: time.Monday, Hour: 15, Engagement: 0.8},
		{Weekday: time.Wednesday, Hour: 15, Engagement: 0.75},
	},
	"linkedin": {
		{Weekday: time.Tuesday, Hour: 14, Engagement: 0.9},
		{Weekday: time.Wednesday, Hour: 14, Engagement: 0.95},
		{Weekday: time.Thursday, Hour: 14, Engagement: 0.9},
	},
	"twitter": {
		{Weekday: time.Monday, Hour: 17, Engagement: 0.8},
		{Weekday: time.Wednesday, Hour: 17, Engagement: 0.85},
		{Weekday: time.Friday, Hour: 16, Engagement: 0.8},
	},
	"mastodon": {
		{Weekday: time.Tuesday, Hour: 19, Engagement: 0.7},
		{Weekday: time.Saturday, Hour: 11, Engagement: 0.65},
	},
}

// Default returns permissive rules that accept any payload
func Default() simplepublish.TargetRules {
	return simplepublish.TargetRules{}
}

// Rules returns the built-in rules for a platform
func Rules(name string) (simplepublish.TargetRules, bool) {
	r, ok := rules[simplepublish.NormalizeTarget(name)]
	return r, ok
}

// All returns the rules for every built-in platform
func All() simplepublish.StaticRules {
	out := make(simplepublish.StaticRules, len(rules))
	for name, r := range rules {
		out[name] = r
	}
	return out
}

// Slots returns the built-in engagement windows for a platform
func Slots(name string) []simplepublish.TimeSlot {
	return append([]simplepublish.TimeSlot(nil), slots[simplepublish.NormalizeTarget(name)]...)
}

// AllSlots returns the engagement windows for every built-in platform
func AllSlots() map[string][]simplepublish.TimeSlot {
	out := make(map[string][]simplepublish.TimeSlot, len(slots))
	for name, windows := range slots {
		out[name] = append([]simplepublish.TimeSlot(nil), windows...)
	}
	return out
}

// Targets returns the built-in platform names, sorted.
func Targets() []string {
	out := All().Targets()
	sort.Strings(out)
	return out
}

// NewDevelopment creates a service configured for local development.
//
// Features:
//   - In-memory queue (instant startup, no setup required)
//   - In-memory publishers for every built-in platform (nothing leaves
//     the process)
//   - Built-in platform rules and engagement windows
//   - Event logging enabled (helpful for debugging)
//
// Example:
//
//	svc, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Use service...
func NewDevelopment(opts ...simplepublish.Option) (simplepublish.Service, error) {
	options := []simplepublish.Option{
		simplepublish.WithStore(memorystore.New()),
		simplepublish.WithRules(All()),
		simplepublish.WithSlots(AllSlots()),
		simplepublish.WithEventSink(simplepublish.NewLoggingEventSink(slog.Default())),
	}
	for name := range rules {
		options = append(options, simplepublish.WithPublisher(name, memorypub.New(name)))
	}
	options = append(options, opts...)

	svc, err := simplepublish.New(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}

// NewTesting creates a service configured for unit and integration tests.
//
// Features:
//   - In-memory queue and publishers (isolated per test)
//   - Built-in platform rules and engagement windows
//   - No event logging (cleaner test output)
//   - Supports parallel test execution
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    svc := presets.NewTesting(t)
//
//	    // Use service in test...
//	}
func NewTesting(t *testing.T, opts ...simplepublish.Option) simplepublish.Service {
	t.Helper()

	options := []simplepublish.Option{
		simplepublish.WithStore(memorystore.New()),
		simplepublish.WithRules(All()),
		simplepublish.WithSlots(AllSlots()),
		simplepublish.WithEventSink(simplepublish.NewNoopEventSink()),
	}
	for name := range rules {
		options = append(options, simplepublish.WithPublisher(name, memorypub.New(name)))
	}
	options = append(options, opts...)

	svc, err := simplepublish.New(options...)
	if err != nil {
		t.Fatalf("failed to create testing service: %v", err)
	}
	return svc
}
