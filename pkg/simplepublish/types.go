package simplepublish

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus is the domain type for item lifecycle states.
type ItemStatus string

// Item status constants (typed).
const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusReady      ItemStatus = "ready"
	ItemStatusPublishing ItemStatus = "publishing"
	ItemStatusPublished  ItemStatus = "published"
	ItemStatusFailed     ItemStatus = "failed"
)

// IsValid reports whether the status is one of the known lifecycle states.
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusPending, ItemStatusReady, ItemStatusPublishing, ItemStatusPublished, ItemStatusFailed:
		return true
	}
	return false
}

// ContentKind is the domain type for payload content kinds.
type ContentKind string

// Content kind constants (typed).
const (
	KindPost    ContentKind = "post"
	KindArticle ContentKind = "article"
	KindImage   ContentKind = "image"
	KindVideo   ContentKind = "video"
	KindStory   ContentKind = "story"
)

// IsValid reports whether the kind is one of the known content kinds.
func (k ContentKind) IsValid() bool {
	switch k {
	case KindPost, KindArticle, KindImage, KindVideo, KindStory:
		return true
	}
	return false
}

// Priority orders items within the queue. Higher ranks publish first.
type Priority string

// Priority constants (typed).
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns the numeric ordering of the priority. Unknown priorities rank
// below low so malformed data never jumps the queue.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// IsValid reports whether the priority is one of the known levels.
func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// Severity grades compatibility issues. Items with high or critical issues
// are not compatible with the target.
type Severity string

// Severity constants (typed).
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether an issue of this severity makes the payload
// incompatible with the target.
func (s Severity) Blocking() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// BreakerState is the domain type for circuit breaker states.
type BreakerState string

// Breaker state constants (typed).
const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Image is a single image attached to a payload.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Payload is the content to publish. Kind selects the per-kind required
// field set; everything else is optional and validated per target.
type Payload struct {
	Kind     ContentKind    `json:"kind"`
	Title    string         `json:"title,omitempty"`
	Body     string         `json:"body,omitempty"`
	Excerpt  string         `json:"excerpt,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Hashtags []string       `json:"hashtags,omitempty"`
	Images   []Image        `json:"images,omitempty"`
	Link     string         `json:"link,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Item represents a queued unit of publishing work.
//
// TestResults are keyed by target and cleared whenever the payload changes.
// PublishResults accumulate across publish attempts so retried items skip
// targets that already succeeded.
type Item struct {
	ID             uuid.UUID                 `json:"id"`
	Payload        Payload                   `json:"payload"`
	Targets        []string                  `json:"targets"`
	Priority       Priority                  `json:"priority"`
	Status         ItemStatus                `json:"status"`
	ScheduledFor   time.Time                 `json:"scheduled_for,omitempty"`
	TestResults    map[string]TestResult     `json:"test_results,omitempty"`
	PublishResults map[string]PublishOutcome `json:"publish_results,omitempty"`
	RetryCount     int                       `json:"retry_count"`
	MaxRetries     int                       `json:"max_retries"`
	LastError      string                    `json:"last_error,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// Clone returns a deep copy of the item. Stores and the service hand out
// clones so callers can never mutate shared state.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	cp := *it
	cp.Targets = append([]string(nil), it.Targets...)
	cp.Payload = it.Payload.Clone()
	if it.TestResults != nil {
		cp.TestResults = make(map[string]TestResult, len(it.TestResults))
		for k, v := range it.TestResults {
			cp.TestResults[k] = v.Clone()
		}
	}
	if it.PublishResults != nil {
		cp.PublishResults = make(map[string]PublishOutcome, len(it.PublishResults))
		for k, v := range it.PublishResults {
			cp.PublishResults[k] = v
		}
	}
	return &cp
}

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	cp := p
	cp.Tags = append([]string(nil), p.Tags...)
	cp.Hashtags = append([]string(nil), p.Hashtags...)
	cp.Images = append([]Image(nil), p.Images...)
	if p.Metadata != nil {
		cp.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// Issue is a single compatibility problem found while testing a payload
// against a target's rules.
type Issue struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
}

// TestResult is the outcome of testing one payload against one target.
type TestResult struct {
	Target      string    `json:"target"`
	Score       int       `json:"score"`
	Compatible  bool      `json:"compatible"`
	Issues      []Issue   `json:"issues,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	TestedAt    time.Time `json:"tested_at"`
}

// Clone returns a copy of the result with its own issue and suggestion slices.
func (r TestResult) Clone() TestResult {
	cp := r
	cp.Issues = append([]Issue(nil), r.Issues...)
	cp.Suggestions = append([]string(nil), r.Suggestions...)
	return cp
}

// TargetScore pairs a target with its compatibility score for ranking.
type TargetScore struct {
	Target     string `json:"target"`
	Score      int    `json:"score"`
	Compatible bool   `json:"compatible"`
}

// TargetRules describes one target's publishing constraints. Zero limits
// mean unlimited.
type TargetRules struct {
	MaxTitleLen    int           `json:"max_title_len,omitempty"`
	MaxBodyLen     int           `json:"max_body_len,omitempty"`
	MaxExcerptLen  int           `json:"max_excerpt_len,omitempty"`
	MaxTags        int           `json:"max_tags,omitempty"`
	MaxHashtags    int           `json:"max_hashtags,omitempty"`
	MaxImages      int           `json:"max_images,omitempty"`
	RequiredFields []string      `json:"required_fields,omitempty"`
	SupportedKinds []ContentKind `json:"supported_kinds,omitempty"`
	ImageFirst     bool          `json:"image_first,omitempty"`
}

// TimeSlot is one recurring high-engagement window for a target. Hour is in
// UTC, 0..23.
type TimeSlot struct {
	Weekday    time.Weekday `json:"weekday"`
	Hour       int          `json:"hour"`
	Engagement float64      `json:"engagement"`
}

// PublishOutcome is the per-target result of one publish run, including the
// resilience accounting for the call.
type PublishOutcome struct {
	Target      string        `json:"target"`
	Success     bool          `json:"success"`
	RemoteID    string        `json:"remote_id,omitempty"`
	RemoteURL   string        `json:"remote_url,omitempty"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	Error       string        `json:"error,omitempty"`
	Attempts    int           `json:"attempts"`
	Elapsed     time.Duration `json:"elapsed"`
	PublishedAt time.Time     `json:"published_at,omitempty"`
}

// CircuitState is a read-only snapshot of one target's breaker. Mutation
// happens only inside the executor, or through an explicit reset.
type CircuitState struct {
	Target              string       `json:"target"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastFailureAt       time.Time    `json:"last_failure_at,omitempty"`
	HalfOpenSuccesses   int          `json:"half_open_successes"`
}

// ItemFilter narrows List operations. Nil/empty fields match everything.
type ItemFilter struct {
	Statuses    []ItemStatus `json:"statuses,omitempty"`
	Target      string       `json:"target,omitempty"`
	ScheduledBy *time.Time   `json:"scheduled_by,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

// StatusReport is the facade's aggregate view of the orchestrator.
type StatusReport struct {
	Items     map[ItemStatus]int `json:"items"`
	QueueSize int                `json:"queue_size"` // pending + ready
	Targets   []string           `json:"targets"`
	Breakers  []CircuitState     `json:"breakers"`
	Time      time.Time          `json:"time"`
}

// TickResult summarizes one scheduler pass.
type TickResult struct {
	Checked  int       `json:"checked"`
	Promoted int       `json:"promoted"`
	Held     int       `json:"held"` // pending items left pending (not due or incompatible)
	Time     time.Time `json:"time"`
}

// ItemOutcome is one item's result within a batch.
type ItemOutcome struct {
	ItemID   uuid.UUID                 `json:"item_id"`
	Status   ItemStatus                `json:"status"`
	Outcomes map[string]PublishOutcome `json:"outcomes,omitempty"`
}

// BatchResult aggregates one batch publishing pass.
type BatchResult struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Requeued  int           `json:"requeued"`
	Skipped   int           `json:"skipped"` // lost the ready->publishing race
	Waves     int           `json:"waves"`
	MeanScore float64       `json:"mean_score"`
	Items     []ItemOutcome `json:"items,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}
