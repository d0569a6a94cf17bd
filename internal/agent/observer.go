package agent

import (
	"sync"
	"time"
)

// Event is the outcome of one Observer.Wait call.
type Event int

const (
	EventDataReady Event = iota
	EventHeartbeat
	EventTimeout
)

// Observer is a reader's subscription to changes on a filter set of
// DataItem ids, starting from a "from sequence" cursor. A push notifies
// matching observers without taking any user lock beyond the observer's
// own; Wait is edge-triggered and tolerant of spurious wakeups.
type Observer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	filter map[string]bool
	cursor uint64
	dirty  bool
	closed bool

	registry *ObserverRegistry
}

func newObserver(registry *ObserverRegistry, filter map[string]bool, cursor uint64) *Observer {
	o := &Observer{registry: registry, filter: filter, cursor: cursor}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// notify is invoked by the buffer's push path (possibly while the buffer's
// own push lock is held); it must never block or re-enter the buffer.
func (o *Observer) notify(dataItemID string, seq uint64) {
	if len(o.filter) > 0 && !o.filter[dataItemID] {
		return
	}
	o.mu.Lock()
	if seq > o.cursor {
		o.dirty = true
		o.cond.Broadcast()
	}
	o.mu.Unlock()
}

// Advance moves the cursor forward, typically after the caller has consumed
// observations up to newCursor via Buffer.Range.
func (o *Observer) Advance(newCursor uint64) {
	o.mu.Lock()
	if newCursor > o.cursor {
		o.cursor = newCursor
	}
	o.mu.Unlock()
}

// Wait blocks for at most min(remaining, heartbeat) and reports what
// happened during that single slice: DataReady if a matching observation
// arrived, Heartbeat if the slice elapsed with nothing matching (and a
// heartbeat was configured), Timeout if remaining was already exhausted
// when Wait was called. Callers implementing a streaming response
// accumulate cumulative timeout across repeated calls, decrementing
// remaining by the elapsed slice each time: e.g. timeout=1000ms,
// heartbeat=200ms yields exactly 5 Heartbeat events (consuming the full
// 1000ms) before the next call observes remaining <= 0 and returns Timeout.
func (o *Observer) Wait(remaining, heartbeat time.Duration) Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.dirty {
		o.dirty = false
		return EventDataReady
	}
	if remaining <= 0 {
		return EventTimeout
	}
	if o.closed {
		return EventTimeout
	}

	noHeartbeat := heartbeat <= 0
	slice := heartbeat
	if noHeartbeat || slice > remaining {
		slice = remaining
	}

	waitWithTimeout(o.cond, slice)

	if o.dirty {
		o.dirty = false
		return EventDataReady
	}
	if noHeartbeat {
		return EventTimeout
	}
	return EventHeartbeat
}

// Close deregisters the observer. Safe to call more than once.
func (o *Observer) Close() {
	o.registry.deregister(o)
	o.mu.Lock()
	o.closed = true
	o.cond.Broadcast()
	o.mu.Unlock()
}

// waitWithTimeout waits on c.Wait() until either Broadcast is called or d
// elapses, returning true if the timer fired first. c.L must be held by the
// caller, matching sync.Cond's usual contract.
func waitWithTimeout(c *sync.Cond, d time.Duration) bool {
	t := time.AfterFunc(d, func() {
		c.L.Lock()
		c.Broadcast()
		c.L.Unlock()
	})
	c.Wait()
	return !t.Stop()
}

// ObserverRegistry is the central per-agent index of observers by DataItem
// id, dispatched to from the buffer's push path under its push lock.
type ObserverRegistry struct {
	mu         sync.Mutex
	byDataItem map[string][]*Observer
	all        []*Observer
}

func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{byDataItem: make(map[string][]*Observer)}
}

// Register subscribes a new Observer. An empty filter matches every
// DataItem.
func (r *ObserverRegistry) Register(filter map[string]bool, cursor uint64) *Observer {
	o := newObserver(r, filter, cursor)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(filter) == 0 {
		r.all = append(r.all, o)
	} else {
		for id := range filter {
			r.byDataItem[id] = append(r.byDataItem[id], o)
		}
	}
	return o
}

func (r *ObserverRegistry) deregister(o *Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(o.filter) == 0 {
		r.all = removeObserver(r.all, o)
		return
	}
	for id := range o.filter {
		r.byDataItem[id] = removeObserver(r.byDataItem[id], o)
	}
}

func removeObserver(list []*Observer, target *Observer) []*Observer {
	for i, o := range list {
		if o == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Notify dispatches a push of dataItemID to every matching observer; seq is
// the buffer's nextSequence after that push, one past the pushed
// observation's own sequence. Called from the buffer's push critical section; takes the
// registry's own short-lived lock to snapshot the subscriber list, then
// notifies outside that lock so a slow observer cannot stall other readers.
func (r *ObserverRegistry) Notify(dataItemID string, seq uint64) {
	r.mu.Lock()
	matched := make([]*Observer, 0, len(r.all)+1)
	matched = append(matched, r.all...)
	matched = append(matched, r.byDataItem[dataItemID]...)
	r.mu.Unlock()

	for _, o := range matched {
		o.notify(dataItemID, seq)
	}
}
