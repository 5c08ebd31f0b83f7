// Package simplepublish provides a reusable library for publishing content
// items to multiple targets with compatibility testing, scheduling, retries,
// and per-target circuit breaking.
//
// It exposes a single Service interface that orchestrates submission of
// content items, compatibility testing against per-target rules, queueing and
// optimal-time scheduling, and resilient batch publishing through pluggable
// Publisher backends. Implementations of item stores (e.g., memory, Postgres)
// and publishers (e.g., memory, webhook, WordPress, S3) are provided under
// subpackages.
//
// Resilience Model
//
// Every publish call runs through a ResilienceExecutor that owns retry policy
// and one circuit breaker per target. Items that fail after exhausting their
// per-call retries are re-queued by the scheduler with a growing delay until
// their own retry budget runs out, at which point they park as failed. The
// two budgets are independent: the executor retries transport-level errors
// within a single publish call, the scheduler retries whole items across
// batch passes.
package simplepublish
