package simplepublish

import (
	"context"
	"net/url"
)

// Hook system allows extending publishing behavior without modifying core
// code. Hooks are called at specific points in the item lifecycle.

// Hooks defines all available lifecycle hooks
type Hooks struct {
	// Publish hooks run around every per-target delivery
	BeforePublish []BeforePublishHook
	AfterPublish  []AfterPublishHook

	// Status change hooks
	OnItemStateChange []ItemStateChangeHook

	// Circuit breaker hooks
	OnBreakerStateChange []BreakerStateChangeHook
}

// HookContext carries information through the hook chain
type HookContext struct {
	Context   context.Context
	Metadata  map[string]interface{} // Custom metadata passed between hooks
	StopChain bool                   // Set to true to stop processing remaining hooks
}

// NewHookContext creates a new hook context
func NewHookContext(ctx context.Context) *HookContext {
	return &HookContext{
		Context:  ctx,
		Metadata: make(map[string]interface{}),
	}
}

// BeforePublishHook is called before delivering an item to one target. The
// payload is a per-target copy; hooks may mutate it freely. Returning
// ErrSkipTarget (or any error) vetoes the delivery for that target only.
type BeforePublishHook func(hctx *HookContext, item *Item, target string, payload *Payload) error

// AfterPublishHook is called after a delivery attempt with its outcome
type AfterPublishHook func(hctx *HookContext, item *Item, outcome PublishOutcome) error

// ItemStateChangeHook is called when an item's status changes
type ItemStateChangeHook func(hctx *HookContext, item *Item, from, to ItemStatus) error

// BreakerStateChangeHook is called when a target's circuit breaker moves
type BreakerStateChangeHook func(hctx *HookContext, target string, from, to BreakerState) error

// Hook execution helpers

// beforePublish runs all BeforePublish hooks
func (h *Hooks) beforePublish(ctx context.Context, item *Item, target string, payload *Payload) error {
	if h == nil || len(h.BeforePublish) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforePublish {
		if err := hook(hctx, item, target, payload); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

// afterPublish runs all AfterPublish hooks
func (h *Hooks) afterPublish(ctx context.Context, item *Item, outcome PublishOutcome) error {
	if h == nil || len(h.AfterPublish) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterPublish {
		if err := hook(hctx, item, outcome); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

// itemStateChange runs all OnItemStateChange hooks
func (h *Hooks) itemStateChange(ctx context.Context, item *Item, from, to ItemStatus) error {
	if h == nil || len(h.OnItemStateChange) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnItemStateChange {
		if err := hook(hctx, item, from, to); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

// breakerStateChange runs all OnBreakerStateChange hooks
func (h *Hooks) breakerStateChange(ctx context.Context, target string, from, to BreakerState) error {
	if h == nil || len(h.OnBreakerStateChange) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnBreakerStateChange {
		if err := hook(hctx, target, from, to); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

// Common hook implementations (examples)

// SkipTargetsHook vetoes delivery to the listed targets. Useful for staging
// environments that should never post to live platforms.
func SkipTargetsHook(targets ...string) BeforePublishHook {
	skip := make(map[string]bool, len(targets))
	for _, t := range targets {
		skip[NormalizeTarget(t)] = true
	}
	return func(hctx *HookContext, item *Item, target string, payload *Payload) error {
		if skip[target] {
			return ErrSkipTarget
		}
		return nil
	}
}

// UTMTaggingHook appends utm_source and utm_medium parameters to the payload
// link so published posts can be attributed per target.
func UTMTaggingHook(source string) BeforePublishHook {
	return func(hctx *HookContext, item *Item, target string, payload *Payload) error {
		if payload.Link == "" {
			return nil
		}
		u, err := url.Parse(payload.Link)
		if err != nil {
			return nil // leave unparseable links alone
		}
		q := u.Query()
		q.Set("utm_source", source)
		q.Set("utm_medium", target)
		u.RawQuery = q.Encode()
		payload.Link = u.String()
		return nil
	}
}

// PayloadValidationHook adds custom validation before every delivery
func PayloadValidationHook(validator func(Payload) error) BeforePublishHook {
	return func(hctx *HookContext, item *Item, target string, payload *Payload) error {
		return validator(*payload)
	}
}
