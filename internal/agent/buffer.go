package agent

import (
	"sync"

	"github.com/mtconnect-go/agent/pkg/schema"
)

// seriesPool receives the backing slices of evicted TimeSeriesValue
// payloads, after the teacher's buffer pool. Nothing in this package takes
// slices back out of it: ApplyTimeSeries allocates a fresh slice for every
// observation.
var seriesPool = sync.Pool{
	New: func() interface{} { return make([]schema.Float, 0, 64) },
}

// maxObservationPayloadBytes bounds the size of a single TimeSeries/DataSet
// value; a push exceeding it is rejected as TooLarge rather than risking
// unbounded allocation on the push path.
const maxObservationPayloadBytes = 1 << 20

// CircularBuffer is the fixed-capacity ring of Observations that backs an
// agent's data store. It is the single point of sequence assignment for the
// whole agent: every push, regardless of which adapter produced it, is
// serialized through buf.mu so sequence numbers are globally total and
// gap-free.
type CircularBuffer struct {
	mu sync.RWMutex

	slots    []schema.Observation
	occupied []bool
	capacity uint64

	firstSequence uint64
	nextSequence  uint64

	base   *Checkpoint
	head   *Checkpoint
	stride uint64
	// strideCheckpoints maps a sequence S (a multiple of stride, taken right
	// after the push that produced it) to a full Checkpoint snapshot of the
	// running head state at that point, used to bound how far current(at=S)
	// has to replay.
	strideCheckpoints map[uint64]*Checkpoint

	observers *ObserverRegistry
}

// NewCircularBuffer allocates a buffer of the given capacity and checkpoint
// stride, with memory preallocated up front. Sequence numbers start at 1;
// MTConnect reserves 0 to mean "unset".
func NewCircularBuffer(capacity uint64, stride uint64, observers *ObserverRegistry) *CircularBuffer {
	if capacity == 0 {
		capacity = DefaultBufferSize
	}
	if stride == 0 {
		stride = capacity / 16
		if stride == 0 {
			stride = 1
		}
	}
	return &CircularBuffer{
		slots:             make([]schema.Observation, capacity),
		occupied:          make([]bool, capacity),
		capacity:          capacity,
		firstSequence:     1,
		nextSequence:      1,
		base:              NewCheckpoint(),
		head:              NewCheckpoint(),
		stride:            stride,
		strideCheckpoints: make(map[uint64]*Checkpoint),
		observers:         observers,
	}
}

func payloadSize(v schema.ObservationValue) int {
	switch vv := v.(type) {
	case schema.TimeSeriesValue:
		return len(vv.Samples) * 8
	case schema.DataSetValue:
		n := 0
		for k, val := range vv {
			n += len(k)
			if val != nil {
				n += len(*val)
			}
		}
		return n
	default:
		return 0
	}
}

// Push assigns obs the next sequence number, writes it into its ring slot,
// rolls any evicted occupant into base, takes a stride checkpoint if due,
// and notifies change observers — all under a single critical section.
// obs.Sequence is overwritten; callers pass it without one set.
func (b *CircularBuffer) Push(obs schema.Observation) (uint64, error) {
	if size := payloadSize(obs.Value); size > maxObservationPayloadBytes {
		return 0, newError(ErrTooLarge, "observation for %s is %d bytes, limit is %d", obs.DataItemID, size, maxObservationPayloadBytes)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.nextSequence
	obs.Sequence = seq
	idx := seq % b.capacity

	if b.occupied[idx] {
		evicted := b.slots[idx]
		b.base.Put(evicted)
		b.firstSequence++
		releaseSeriesPayload(evicted.Value)
	}

	b.slots[idx] = obs
	b.occupied[idx] = true
	b.nextSequence++
	b.head.Put(obs)

	if b.stride > 0 && b.nextSequence%b.stride == 0 {
		b.strideCheckpoints[b.nextSequence] = b.head.Clone()
		b.pruneStrideCheckpointsLocked()
	}

	if b.observers != nil {
		b.observers.Notify(obs.DataItemID, b.nextSequence)
	}

	return seq, nil
}

func releaseSeriesPayload(v schema.ObservationValue) {
	if ts, ok := v.(schema.TimeSeriesValue); ok && cap(ts.Samples) > 0 {
		seriesPool.Put(ts.Samples[:0]) //nolint:staticcheck // slice header boxed into the pool
	}
}

// pruneStrideCheckpointsLocked keeps only the most recent checkpoints whose
// sequence is still within the live window, since a stride checkpoint
// anchored before firstSequence can never be the closest preceding one used
// by At/Current.
func (b *CircularBuffer) pruneStrideCheckpointsLocked() {
	for seq := range b.strideCheckpoints {
		if seq <= b.firstSequence {
			delete(b.strideCheckpoints, seq)
		}
	}
}

// At returns the observation at seq, or nil if it has already been evicted
// or has not happened yet.
func (b *CircularBuffer) At(seq uint64) *schema.Observation {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if seq < b.firstSequence || seq >= b.nextSequence {
		return nil
	}
	idx := seq % b.capacity
	if !b.occupied[idx] || b.slots[idx].Sequence != seq {
		return nil
	}
	obs := b.slots[idx]
	return &obs
}

// Range returns up to count observations starting at from whose DataItem id
// is in filter (or all, if filter is empty), plus the sequence of the first
// observation not included. from=0 means "from the start of the buffer",
// since 0 is never a real sequence number; any other from below
// firstSequence is OutOfRange.
func (b *CircularBuffer) Range(from uint64, count int, filter map[string]bool) ([]schema.Observation, uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if from != 0 && from < b.firstSequence {
		return nil, 0, newError(ErrOutOfRange, "from=%d is before firstSequence=%d", from, b.firstSequence)
	}
	if from < b.firstSequence {
		from = b.firstSequence
	}

	out := make([]schema.Observation, 0, count)
	seq := from
	for seq < b.nextSequence && len(out) < count {
		idx := seq % b.capacity
		if b.occupied[idx] && b.slots[idx].Sequence == seq {
			obs := b.slots[idx]
			if len(filter) == 0 || filter[obs.DataItemID] {
				out = append(out, obs)
			}
		}
		seq++
	}
	return out, seq, nil
}

// Current returns the running head checkpoint (atSeq == nil) or, for a
// historical atSeq, the closest preceding stride checkpoint replayed forward
// through atSeq inclusive, masked by filter.
func (b *CircularBuffer) Current(filter map[string]bool, atSeq *uint64) (*Checkpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if atSeq == nil {
		return b.head.Filter(filter), nil
	}

	seq := *atSeq
	if seq < b.firstSequence {
		return nil, newError(ErrOutOfRange, "at=%d is before firstSequence=%d", seq, b.firstSequence)
	}
	if seq > b.nextSequence {
		seq = b.nextSequence
	}

	cp := b.closestStrideCheckpointLocked(seq)
	for s := cp.anchor; s <= seq; s++ {
		idx := s % b.capacity
		if b.occupied[idx] && b.slots[idx].Sequence == s {
			cp.checkpoint.Put(b.slots[idx])
		}
	}
	return cp.checkpoint.Filter(filter), nil
}

type anchoredCheckpoint struct {
	anchor     uint64
	checkpoint *Checkpoint
}

// closestStrideCheckpointLocked finds the stride checkpoint with the
// greatest anchor sequence <= seq, falling back to base/firstSequence.
func (b *CircularBuffer) closestStrideCheckpointLocked(seq uint64) anchoredCheckpoint {
	bestAnchor := b.firstSequence
	best := b.base
	for anchor, cp := range b.strideCheckpoints {
		if anchor <= seq && anchor >= bestAnchor {
			bestAnchor = anchor
			best = cp
		}
	}
	return anchoredCheckpoint{anchor: bestAnchor, checkpoint: best.Clone()}
}

// FirstSequence, NextSequence, LastSequence, Capacity report the buffer's
// public bookkeeping fields, used to populate stream response headers.
func (b *CircularBuffer) FirstSequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.firstSequence
}

func (b *CircularBuffer) NextSequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSequence
}

func (b *CircularBuffer) LastSequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.nextSequence == 0 {
		return 0
	}
	return b.nextSequence - 1
}

func (b *CircularBuffer) Capacity() uint64 {
	return b.capacity
}
