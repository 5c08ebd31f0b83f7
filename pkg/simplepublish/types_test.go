package simplepublish

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestItemStatusIsValid tests the IsValid method for ItemStatus
func TestItemStatusIsValid(t *testing.T) {
	tests := []struct {
		name   string
		status ItemStatus
		want   bool
	}{
		{
			name:   "valid status: pending",
			status: ItemStatusPending,
			want:   true,
		},
		{
			name:   "valid status: ready",
			status: ItemStatusReady,
			want:   true,
		},
		{
			name:   "valid status: publishing",
			status: ItemStatusPublishing,
			want:   true,
		},
		{
			name:   "valid status: published",
			status: ItemStatusPublished,
			want:   true,
		},
		{
			name:   "valid status: failed",
			status: ItemStatusFailed,
			want:   true,
		},
		{
			name:   "invalid status: empty string",
			status: ItemStatus(""),
			want:   false,
		},
		{
			name:   "invalid status: draft (undefined)",
			status: ItemStatus("draft"),
			want:   false,
		},
		{
			name:   "invalid status: uppercase PENDING",
			status: ItemStatus("PENDING"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

// TestContentKindIsValid tests the IsValid method for ContentKind
func TestContentKindIsValid(t *testing.T) {
	for _, kind := range []ContentKind{KindPost, KindArticle, KindImage, KindVideo, KindStory} {
		if !kind.IsValid() {
			t.Errorf("IsValid(%q) = false, want true", kind)
		}
	}
	for _, kind := range []ContentKind{"", "podcast", "POST"} {
		if kind.IsValid() {
			t.Errorf("IsValid(%q) = true, want false", kind)
		}
	}
}

// TestPriorityRank tests the ordering of priorities
func TestPriorityRank(t *testing.T) {
	if !(PriorityUrgent.Rank() > PriorityHigh.Rank() &&
		PriorityHigh.Rank() > PriorityNormal.Rank() &&
		PriorityNormal.Rank() > PriorityLow.Rank()) {
		t.Error("priority ranks are not strictly ordered urgent > high > normal > low")
	}
	if Priority("asap").Rank() != 0 {
		t.Errorf("Rank of unknown priority = %d, want 0", Priority("asap").Rank())
	}
	if Priority("asap").IsValid() {
		t.Error("IsValid for unknown priority = true, want false")
	}
	if !PriorityNormal.IsValid() {
		t.Error("IsValid(normal) = false, want true")
	}
}

// TestSeverityBlocking tests which severities block publishing
func TestSeverityBlocking(t *testing.T) {
	tests := []struct {
		severity Severity
		want     bool
	}{
		{SeverityLow, false},
		{SeverityMedium, false},
		{SeverityHigh, true},
		{SeverityCritical, true},
	}
	for _, tt := range tests {
		if got := tt.severity.Blocking(); got != tt.want {
			t.Errorf("Blocking(%q) = %v, want %v", tt.severity, got, tt.want)
		}
	}
}

func TestItemClone(t *testing.T) {
	item := &Item{
		ID:       uuid.New(),
		Payload:  Payload{Kind: KindPost, Body: "hello", Tags: []string{"go"}, Images: []Image{{URL: "https://example.com/a.png", Alt: "a"}}},
		Targets:  []string{"blog", "mirror"},
		Priority: PriorityNormal,
		Status:   ItemStatusPending,
		TestResults: map[string]TestResult{
			"blog": {Target: "blog", Score: 90, Compatible: true, Issues: []Issue{{Field: "tags", Severity: SeverityMedium}}},
		},
		PublishResults: map[string]PublishOutcome{
			"blog": {Target: "blog", Success: true},
		},
		CreatedAt: time.Now(),
	}

	clone := item.Clone()

	clone.Targets[0] = "changed"
	clone.Payload.Tags[0] = "changed"
	clone.TestResults["blog"] = TestResult{Target: "blog", Score: 1}
	clone.PublishResults["mirror"] = PublishOutcome{Target: "mirror"}

	if item.Targets[0] != "blog" {
		t.Error("clone shares Targets slice with original")
	}
	if item.Payload.Tags[0] != "go" {
		t.Error("clone shares payload Tags slice with original")
	}
	if item.TestResults["blog"].Score != 90 {
		t.Error("clone shares TestResults map with original")
	}
	if _, ok := item.PublishResults["mirror"]; ok {
		t.Error("clone shares PublishResults map with original")
	}

	var nilItem *Item
	if nilItem.Clone() != nil {
		t.Error("Clone of nil item should be nil")
	}
}

func TestPayloadClone(t *testing.T) {
	p := Payload{
		Kind:     KindImage,
		Images:   []Image{{URL: "https://example.com/a.png"}},
		Hashtags: []string{"golang"},
		Metadata: map[string]any{"campaign": "launch"},
	}

	clone := p.Clone()
	clone.Images[0].URL = "changed"
	clone.Hashtags[0] = "changed"
	clone.Metadata["campaign"] = "changed"

	if p.Images[0].URL != "https://example.com/a.png" {
		t.Error("clone shares Images slice with original")
	}
	if p.Hashtags[0] != "golang" {
		t.Error("clone shares Hashtags slice with original")
	}
	if p.Metadata["campaign"] != "launch" {
		t.Error("clone shares Metadata map with original")
	}
}

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Twitter", "twitter"},
		{"  LinkedIn  ", "linkedin"},
		{"dev.to", "dev.to"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTarget(tt.in); got != tt.want {
			t.Errorf("NormalizeTarget(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTargets(t *testing.T) {
	got := normalizeTargets([]string{"Twitter", " twitter ", "", "Mastodon", "TWITTER"})
	want := []string{"twitter", "mastodon"}
	if len(got) != len(want) {
		t.Fatalf("normalizeTargets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("normalizeTargets[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizePayload(t *testing.T) {
	p := normalizePayload(Payload{
		Kind:     KindPost,
		Title:    "  Release Notes  ",
		Body:     "  body keeps its whitespace  ",
		Excerpt:  " short ",
		Link:     " https://example.com/post ",
		Tags:     []string{" Go ", "go", "", "Testing"},
		Hashtags: []string{"#golang", "golang", "#Testing"},
	})

	if p.Title != "Release Notes" {
		t.Errorf("Title = %q, want trimmed", p.Title)
	}
	if p.Body != "  body keeps its whitespace  " {
		t.Errorf("Body = %q, want untouched", p.Body)
	}
	if p.Excerpt != "short" {
		t.Errorf("Excerpt = %q, want trimmed", p.Excerpt)
	}
	if p.Link != "https://example.com/post" {
		t.Errorf("Link = %q, want trimmed", p.Link)
	}

	wantTags := []string{"Go", "Testing"}
	if len(p.Tags) != len(wantTags) {
		t.Fatalf("Tags = %v, want %v", p.Tags, wantTags)
	}
	for i := range wantTags {
		if p.Tags[i] != wantTags[i] {
			t.Errorf("Tags[%d] = %q, want %q", i, p.Tags[i], wantTags[i])
		}
	}

	wantHashtags := []string{"golang", "Testing"}
	if len(p.Hashtags) != len(wantHashtags) {
		t.Fatalf("Hashtags = %v, want %v", p.Hashtags, wantHashtags)
	}
	for i := range wantHashtags {
		if p.Hashtags[i] != wantHashtags[i] {
			t.Errorf("Hashtags[%d] = %q, want %q", i, p.Hashtags[i], wantHashtags[i])
		}
	}
}
