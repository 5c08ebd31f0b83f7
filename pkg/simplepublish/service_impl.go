package simplepublish

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
)

// defaultItemMaxRetries is the per-item requeue budget applied when a submit
// request does not set one. It is separate from RetryPolicy.MaxRetries, which
// bounds attempts within a single delivery call.
const defaultItemMaxRetries = 3

// service is the default Service implementation
type service struct {
	store       ItemStore
	publishers  map[string]Publisher
	rules       RulesProvider
	slots       map[string][]TimeSlot
	policy      RetryPolicy
	breakerCfg  BreakerConfig
	clock       Clock
	logger      *slog.Logger
	events      EventSink
	metrics     MetricsRecorder
	hooks       *Hooks
	maxRetries  int
	requeueBase time.Duration
	requeueMax  time.Duration

	tester *Tester
	exec   *Executor
	sched  *scheduler
	batch  *batchOrchestrator
}

// Option is a functional option for configuring the service
type Option func(*service)

// WithStore sets the item store (required)
func WithStore(store ItemStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithPublisher registers a publisher under the given target name. The name
// may differ from p.Target() so one adapter can serve several targets.
func WithPublisher(name string, p Publisher) Option {
	return func(s *service) {
		s.publishers[NormalizeTarget(name)] = p
	}
}

// WithRules sets the per-target publishing rules
func WithRules(rules RulesProvider) Option {
	return func(s *service) {
		s.rules = rules
	}
}

// WithSlots sets the per-target engagement windows used to compute optimal
// publish times
func WithSlots(slots map[string][]TimeSlot) Option {
	return func(s *service) {
		normalized := make(map[string][]TimeSlot, len(slots))
		for target, windows := range slots {
			normalized[NormalizeTarget(target)] = windows
		}
		s.slots = normalized
	}
}

// WithRetryPolicy sets the per-call retry policy used by the executor
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *service) {
		s.policy = policy
	}
}

// WithBreakerConfig sets the per-target circuit breaker settings
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(s *service) {
		s.breakerCfg = cfg
	}
}

// WithClock sets the time source. Tests inject a fake clock here.
func WithClock(clock Clock) Option {
	return func(s *service) {
		s.clock = clock
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithEventSink sets the event sink for lifecycle events
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.events = sink
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *service) {
		s.metrics = metrics
	}
}

// WithHooks sets the lifecycle hooks
func WithHooks(hooks *Hooks) Option {
	return func(s *service) {
		s.hooks = hooks
	}
}

// WithDefaultMaxRetries sets the requeue budget given to items whose submit
// request does not specify one
func WithDefaultMaxRetries(n int) Option {
	return func(s *service) {
		s.maxRetries = n
	}
}

// WithRequeueDelay sets the base and cap of the failed-item requeue backoff
func WithRequeueDelay(base, max time.Duration) Option {
	return func(s *service) {
		s.requeueBase = base
		s.requeueMax = max
	}
}

// New creates a new publishing service with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		publishers:  make(map[string]Publisher),
		policy:      DefaultRetryPolicy(),
		breakerCfg:  DefaultBreakerConfig(),
		clock:       NewClock(),
		logger:      slog.Default(),
		events:      NewNoopEventSink(),
		metrics:     noopMetrics{},
		hooks:       &Hooks{},
		maxRetries:  defaultItemMaxRetries,
		requeueBase: defaultRequeueBase,
		requeueMax:  defaultRequeueMax,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if len(s.publishers) == 0 {
		return nil, fmt.Errorf("at least one publisher is required")
	}
	if s.maxRetries < 0 {
		return nil, fmt.Errorf("default max retries cannot be negative")
	}
	if s.rules == nil {
		// Without explicit rules every registered target accepts anything.
		open := make(StaticRules, len(s.publishers))
		for name := range s.publishers {
			open[name] = TargetRules{}
		}
		s.rules = open
	}

	s.tester = &Tester{rules: s.rules, clock: s.clock}
	s.exec = NewExecutor(s.policy, s.breakerCfg,
		WithExecutorClock(s.clock),
		WithExecutorLogger(s.logger),
		WithBreakerStateChange(s.noteBreakerChange),
	)
	s.sched = &scheduler{
		store:       s.store,
		tester:      s.tester,
		clock:       s.clock,
		slots:       s.slots,
		requeueBase: s.requeueBase,
		requeueMax:  s.requeueMax,
		notify:      s.noteTransition,
	}
	s.batch = &batchOrchestrator{
		store:      s.store,
		exec:       s.exec,
		publishers: s.publishers,
		sched:      s.sched,
		hooks:      s.hooks,
		clock:      s.clock,
		logger:     s.logger,
		events:     s.events,
		metrics:    s.metrics,
		notify:     s.noteTransition,
	}

	return s, nil
}

// noteTransition reports a status change to hooks and the event sink. Sink
// and hook errors never fail the underlying operation.
func (s *service) noteTransition(ctx context.Context, item *Item, from, to ItemStatus) {
	if err := s.hooks.itemStateChange(ctx, item, from, to); err != nil {
		s.logger.Error("state change hook error", "item_id", item.ID, "error", err)
	}
	if err := s.events.ItemStateChanged(ctx, item, from, to); err != nil {
		s.logger.Error("event sink error", "event", "item_state_changed", "error", err)
	}
}

// noteBreakerChange fans breaker transitions out to hooks, events and
// metrics. Called from the executor without a request context.
func (s *service) noteBreakerChange(target string, from, to BreakerState) {
	ctx := context.Background()
	if err := s.hooks.breakerStateChange(ctx, target, from, to); err != nil {
		s.logger.Error("breaker hook error", "target", target, "error", err)
	}
	if err := s.events.BreakerStateChanged(ctx, target, from, to); err != nil {
		s.logger.Error("event sink error", "event", "breaker_state_changed", "error", err)
	}
	s.metrics.RecordBreakerState(target, to)
}

// Item operations

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*Item, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	targets := normalizeTargets(req.Targets)
	for _, target := range targets {
		if _, ok := s.publishers[target]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
		}
	}

	payload := normalizePayload(req.Payload)
	results, err := s.tester.TestAll(payload, targets)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		s.metrics.RecordTest(r.Target, r.Score, r.Compatible)
	}

	now := s.clock.Now()
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	maxRetries := s.maxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	scheduledFor := req.ScheduledFor
	if req.AtOptimalTime && scheduledFor.IsZero() {
		scheduledFor = s.sched.optimalFor(targets)
	}

	item := &Item{
		ID:           uuid.New(),
		Payload:      payload,
		Targets:      targets,
		Priority:     priority,
		Status:       ItemStatusPending,
		ScheduledFor: scheduledFor,
		TestResults:  results,
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// Compatible content with no future schedule skips the pending stage.
	if allCompatible(results) && !scheduledFor.After(now) {
		item.Status = ItemStatusReady
	}

	if err := s.sched.enqueue(ctx, item); err != nil {
		return nil, err
	}

	// Fire event
	if err := s.events.ItemSubmitted(ctx, item); err != nil {
		s.logger.Error("event sink error", "event", "item_submitted", "error", err)
	}
	s.logger.Info("item submitted",
		"item_id", item.ID, "status", item.Status, "targets", targets, "scheduled_for", scheduledFor)

	return item, nil
}

func (s *service) UpdateContent(ctx context.Context, id uuid.UUID, payload Payload) (*Item, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "update", Err: err}
	}
	if _, err := canUpdateContent(item.Status); err != nil {
		return nil, &ItemError{ItemID: id, Op: "update", Err: err}
	}

	if item.Status == ItemStatusReady {
		// Content changed, so recorded test results are stale.
		demoted, err := s.store.Transition(ctx, id, ItemStatusReady, ItemStatusPending)
		if err != nil {
			return nil, &ItemError{ItemID: id, Op: "update", Err: err}
		}
		s.noteTransition(ctx, demoted, ItemStatusReady, ItemStatusPending)
		item = demoted
	}

	item.Payload = normalizePayload(payload)
	item.TestResults = nil
	item.UpdatedAt = s.clock.Now()
	if err := s.store.Update(ctx, item); err != nil {
		return nil, &ItemError{ItemID: id, Op: "update", Err: err}
	}

	return item, nil
}

func (s *service) Remove(ctx context.Context, id uuid.UUID) error {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return &ItemError{ItemID: id, Op: "remove", Err: err}
	}
	if _, err := canRemove(item.Status); err != nil {
		return &ItemError{ItemID: id, Op: "remove", Err: err}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return &ItemError{ItemID: id, Op: "remove", Err: err}
	}
	s.logger.Info("item removed", "item_id", id)
	return nil
}

func (s *service) Item(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.store.Get(ctx, id)
}

func (s *service) ListItems(ctx context.Context, filter ItemFilter) ([]*Item, error) {
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortQueue(items)
	return items, nil
}

// Compatibility operations

func (s *service) TestReadiness(ctx context.Context, id uuid.UUID) (map[string]TestResult, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "test", Err: err}
	}

	results, err := s.tester.TestAll(item.Payload, item.Targets)
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "test", Err: err}
	}
	for _, r := range results {
		s.metrics.RecordTest(r.Target, r.Score, r.Compatible)
	}

	// Persist fresh results unless the item is mid-flight or done.
	if item.Status == ItemStatusPending || item.Status == ItemStatusReady || item.Status == ItemStatusFailed {
		item.TestResults = results
		item.UpdatedAt = s.clock.Now()
		if err := s.store.Update(ctx, item); err != nil {
			return nil, &ItemError{ItemID: id, Op: "test", Err: err}
		}
	}

	return results, nil
}

func (s *service) BestTargets(ctx context.Context, payload Payload, targets []string) ([]TargetScore, error) {
	if len(targets) == 0 {
		targets = s.rules.Targets()
	}
	return s.tester.BestTargets(normalizePayload(payload), normalizeTargets(targets))
}

func (s *service) NextOptimalTime(ctx context.Context, targets []string) (time.Time, error) {
	targets = normalizeTargets(targets)
	if len(targets) == 0 {
		return time.Time{}, fmt.Errorf("%w: at least one target is required", ErrInvalidItem)
	}
	for _, target := range targets {
		if _, ok := s.publishers[target]; !ok {
			return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
		}
	}
	return s.sched.optimalFor(targets), nil
}

// Publishing operations

func (s *service) PublishNow(ctx context.Context, id uuid.UUID) (*BatchResult, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "publish_now", Err: err}
	}
	if _, err := canPublishNow(item.Status); err != nil {
		return nil, &ItemError{ItemID: id, Op: "publish_now", Err: err}
	}

	// A failed item re-enters the queue first. Manual publishes do not
	// consume the requeue budget; only failed passes do.
	if item.Status == ItemStatusFailed {
		if _, err := canRequeue(item); err != nil {
			return nil, &ItemError{ItemID: id, Op: "publish_now", Err: err}
		}
		revived, err := s.store.Transition(ctx, id, ItemStatusFailed, ItemStatusPending)
		if err != nil {
			return nil, &ItemError{ItemID: id, Op: "publish_now", Err: err}
		}
		s.noteTransition(ctx, revived, ItemStatusFailed, ItemStatusPending)
		item = revived
	}

	// Fresh compatibility pass; incompatible content does not go out.
	results, err := s.tester.TestAll(item.Payload, item.Targets)
	if err != nil {
		return nil, &ItemError{ItemID: id, Op: "publish_now", Err: err}
	}
	item.TestResults = results
	item.UpdatedAt = s.clock.Now()
	if err := s.store.Update(ctx, item); err != nil {
		return nil, &ItemError{ItemID: id, Op: "publish_now", Err: err}
	}
	if !allCompatible(results) {
		return nil, &ItemError{
			ItemID: id,
			Op:     "publish_now",
			Err:    fmt.Errorf("%w: %s", ErrNotCompatible, incompatibleSummary(results)),
		}
	}

	if item.Status == ItemStatusPending {
		promoted, err := s.store.Transition(ctx, id, ItemStatusPending, ItemStatusReady)
		if err != nil {
			return nil, &ItemError{ItemID: id, Op: "publish_now", Err: err}
		}
		s.noteTransition(ctx, promoted, ItemStatusPending, ItemStatusReady)
		item = promoted
	}

	res, err := s.batch.run(ctx, []*Item{item}, BatchOptions{Concurrency: 1})
	if err != nil {
		return res, err
	}
	s.recordBatch(ctx, res)
	return res, nil
}

func (s *service) Tick(ctx context.Context) (*TickResult, error) {
	res, err := s.sched.promote(ctx)
	if err != nil {
		return res, err
	}
	if counts, err := s.store.CountByStatus(ctx); err == nil {
		s.metrics.RecordQueueDepth(counts)
	}
	s.logger.Debug("tick completed", "checked", res.Checked, "promoted", res.Promoted, "held", res.Held)
	return res, nil
}

func (s *service) PublishAllReady(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	items, err := s.sched.readyNow(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}

	res, runErr := s.batch.run(ctx, items, opts)
	if res != nil {
		s.recordBatch(ctx, res)
	}
	return res, runErr
}

// recordBatch fans a finished pass out to metrics, events and the log.
func (s *service) recordBatch(ctx context.Context, res *BatchResult) {
	s.metrics.RecordBatch(res)
	if err := s.events.BatchCompleted(ctx, res); err != nil {
		s.logger.Error("event sink error", "event", "batch_completed", "error", err)
	}
	s.logger.Info("batch completed",
		"total", res.Total, "succeeded", res.Succeeded, "failed", res.Failed,
		"requeued", res.Requeued, "skipped", res.Skipped, "waves", res.Waves)
}

// Operational visibility

func (s *service) Status(ctx context.Context) (*StatusReport, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordQueueDepth(counts)

	targets := maps.Keys(s.publishers)
	sort.Strings(targets)

	return &StatusReport{
		Items:     counts,
		QueueSize: counts[ItemStatusPending] + counts[ItemStatusReady],
		Targets:   targets,
		Breakers:  s.exec.States(),
		Time:      s.clock.Now(),
	}, nil
}

func (s *service) ResetBreaker(ctx context.Context, target string) error {
	target = NormalizeTarget(target)
	if _, ok := s.publishers[target]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	s.exec.Reset(target)
	s.logger.Info("breaker reset", "target", target)
	return nil
}

// incompatibleSummary flattens blocking issues into one error message,
// ordered by target for stable output.
func incompatibleSummary(results map[string]TestResult) string {
	targets := maps.Keys(results)
	sort.Strings(targets)

	var parts []string
	for _, target := range targets {
		r := results[target]
		if r.Compatible {
			continue
		}
		for _, issue := range r.Issues {
			if issue.Severity.Blocking() {
				parts = append(parts, fmt.Sprintf("%s: %s", target, issue.Message))
			}
		}
	}
	return strings.Join(parts, "; ")
}
