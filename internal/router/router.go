// Package router broadcasts events to an ordered list of processors.
//
// A processor declares which events it consumes through Matches. Publish
// delivers an event to every matching processor in registration order and
// returns when all of them are done. Events published from inside a
// processor are queued on the active dispatch and delivered after the
// current event, so broadcast never recurses.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

// DefaultMaxDepth bounds how many generations of follow-up events one
// Publish call may deliver (candle → signal is depth 1).
const DefaultMaxDepth = 4

// ErrMaxDepth is returned when a follow-up event exceeds the depth limit.
var ErrMaxDepth = errors.New("router: publish depth limit exceeded")

// Processor consumes events from the router.
type Processor interface {
	// Matches reports whether the processor consumes ev.
	Matches(ev model.Event) bool

	// ProcessEvent handles ev. An error aborts the current dispatch and is
	// returned from Publish.
	ProcessEvent(ctx context.Context, ev model.Event) error
}

// Router is an ordered processor registry. It is safe for concurrent use;
// concurrent Publish calls run independent dispatches.
type Router struct {
	mu         sync.RWMutex
	processors []Processor
	maxDepth   int
}

// New creates a Router with the given follow-up depth limit
// (<= 0 uses DefaultMaxDepth).
func New(maxDepth int) *Router {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Router{maxDepth: maxDepth}
}

// Register appends processors to the broadcast list.
func (r *Router) Register(ps ...Processor) {
	r.mu.Lock()
	r.processors = append(r.processors, ps...)
	r.mu.Unlock()
}

// Len returns the number of registered processors.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processors)
}

type dispatchKey struct{}

type queued struct {
	ev    model.Event
	depth int
}

// dispatch is the queue of one top-level Publish call.
type dispatch struct {
	mu      sync.Mutex
	queue   []queued
	current int
	done    bool
}

// enqueue adds a follow-up event. It returns false if the dispatch has
// already finished draining.
func (d *dispatch) enqueue(ev model.Event, maxDepth int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return false, nil
	}
	depth := d.current + 1
	if depth > maxDepth {
		return true, fmt.Errorf("%w: %s at depth %d", ErrMaxDepth, ev.EventType(), depth)
	}
	d.queue = append(d.queue, queued{ev: ev, depth: depth})
	return true, nil
}

func (d *dispatch) next() (queued, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		d.done = true
		return queued{}, false
	}
	q := d.queue[0]
	d.queue = d.queue[1:]
	d.current = q.depth
	return q, true
}

func (d *dispatch) finish() {
	d.mu.Lock()
	d.done = true
	d.queue = nil
	d.mu.Unlock()
}

// Publish delivers ev to every matching processor in registration order.
//
// Called from inside a processor with the ctx it was handed, Publish queues
// ev behind the event being processed and returns nil immediately; the
// outer Publish delivers it. The first processor error stops the dispatch
// and is returned wrapped. Nothing is retried.
func (r *Router) Publish(ctx context.Context, ev model.Event) error {
	if ev == nil {
		return nil
	}
	if d, ok := ctx.Value(dispatchKey{}).(*dispatch); ok {
		if accepted, err := d.enqueue(ev, r.maxDepth); accepted || err != nil {
			return err
		}
	}

	d := &dispatch{queue: []queued{{ev: ev}}}
	defer d.finish()
	dctx := context.WithValue(ctx, dispatchKey{}, d)

	r.mu.RLock()
	procs := make([]Processor, len(r.processors))
	copy(procs, r.processors)
	r.mu.RUnlock()

	for {
		q, ok := d.next()
		if !ok {
			return nil
		}
		for _, p := range procs {
			if !p.Matches(q.ev) {
				continue
			}
			if err := p.ProcessEvent(dctx, q.ev); err != nil {
				return fmt.Errorf("router: %T on %s: %w", p, q.ev.EventType(), err)
			}
		}
	}
}

// Emit adapts Publish to the signal adapter's callback.
func (r *Router) Emit(ctx context.Context, sig *model.TradeSignal) error {
	return r.Publish(ctx, sig)
}

// Func adapts a pair of functions to the Processor interface.
type Func struct {
	MatchFn   func(ev model.Event) bool
	ProcessFn func(ctx context.Context, ev model.Event) error
}

func (f Func) Matches(ev model.Event) bool {
	if f.MatchFn == nil {
		return true
	}
	return f.MatchFn(ev)
}

func (f Func) ProcessEvent(ctx context.Context, ev model.Event) error {
	if f.ProcessFn == nil {
		return nil
	}
	return f.ProcessFn(ctx, ev)
}

// OfType returns a match function for one event family.
func OfType(eventType string) func(model.Event) bool {
	return func(ev model.Event) bool { return ev.EventType() == eventType }
}
