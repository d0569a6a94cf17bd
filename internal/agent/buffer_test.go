package agent

import (
	"testing"
	"time"

	"github.com/mtconnect-go/agent/pkg/schema"
)

func mkObs(id string, v schema.ObservationValue) schema.Observation {
	return schema.Observation{DataItemID: id, Timestamp: time.Now(), Value: v}
}

// Simple ingestion into an empty buffer (BufferSize=8, one DataItem, dedup
// already applied upstream by DataItem.apply; the buffer only sees what
// survives filtering).
func TestBufferSimpleIngestion(t *testing.T) {
	buf := NewCircularBuffer(8, 2, NewObserverRegistry())

	seq1, err := buf.Push(mkObs("X", schema.ScalarValue("RUNNING")))
	if err != nil {
		t.Fatal(err)
	}
	seq2, err := buf.Push(mkObs("X", schema.ScalarValue("STOPPED")))
	if err != nil {
		t.Fatal(err)
	}

	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("expected sequences 1,2 got %d,%d", seq1, seq2)
	}
	if buf.NextSequence() != 3 {
		t.Errorf("expected nextSequence=3, got %d", buf.NextSequence())
	}

	obs, next, err := buf.Range(0, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 2 || obs[0].Value != schema.ScalarValue("RUNNING") || obs[1].Value != schema.ScalarValue("STOPPED") {
		t.Errorf("unexpected range result: %+v", obs)
	}
	if next != 3 {
		t.Errorf("expected nextSeq cursor 3, got %d", next)
	}
}

// Overflow: BufferSize=4, push 10 observations of the same DataItem.
func TestBufferOverflow(t *testing.T) {
	buf := NewCircularBuffer(4, 1, NewObserverRegistry())

	for i := 0; i < 10; i++ {
		if _, err := buf.Push(mkObs("X", schema.ScalarValue(string(rune('0'+i))))); err != nil {
			t.Fatal(err)
		}
	}

	if buf.FirstSequence() != 7 {
		t.Errorf("expected firstSequence=7, got %d", buf.FirstSequence())
	}
	if buf.NextSequence() != 11 {
		t.Errorf("expected nextSequence=11, got %d", buf.NextSequence())
	}

	cp, err := buf.Current(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	obs := cp.ToObservations()
	if len(obs) != 1 || obs[0].Value != schema.ScalarValue("9") {
		t.Errorf("expected current() == v9, got %+v", obs)
	}

	tail, _, err := buf.Range(0, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 4 || tail[0].Value != schema.ScalarValue("6") || tail[3].Value != schema.ScalarValue("9") {
		t.Errorf("expected tail v6..v9, got %+v", tail)
	}
}

// Sequences assigned by Push are monotonic and gap-free.
func TestBufferSequenceMonotonic(t *testing.T) {
	buf := NewCircularBuffer(16, 4, NewObserverRegistry())
	var last uint64
	for i := 0; i < 100; i++ {
		seq, err := buf.Push(mkObs("X", schema.ScalarValue("v")))
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 && seq != last+1 {
			t.Fatalf("gap in sequence: %d -> %d", last, seq)
		}
		last = seq
	}
}

// current(at=firstSequence) still reflects the evicted DataItem's
// rolled-forward value.
func TestBufferEvictionSafety(t *testing.T) {
	buf := NewCircularBuffer(4, 1, NewObserverRegistry())
	for i := 0; i < 6; i++ {
		if _, err := buf.Push(mkObs("X", schema.ScalarValue(string(rune('a'+i))))); err != nil {
			t.Fatal(err)
		}
	}

	at := buf.FirstSequence()
	cp, err := buf.Current(nil, &at)
	if err != nil {
		t.Fatal(err)
	}
	obs := cp.ToObservations()
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation rolled into base, got %+v", obs)
	}
}

// Checkpoint contents at a given sequence don't depend on the stride K.
func TestBufferCheckpointEquivalenceAcrossStride(t *testing.T) {
	regA := NewObserverRegistry()
	regB := NewObserverRegistry()
	bufFineStride := NewCircularBuffer(64, 1, regA)
	bufCoarseStride := NewCircularBuffer(64, 16, regB)

	for i := 0; i < 40; i++ {
		v := schema.ScalarValue(string(rune('a' + (i % 20))))
		if _, err := bufFineStride.Push(mkObs("X", v)); err != nil {
			t.Fatal(err)
		}
		if _, err := bufCoarseStride.Push(mkObs("X", v)); err != nil {
			t.Fatal(err)
		}
	}

	at := uint64(25)
	cp1, err := bufFineStride.Current(nil, &at)
	if err != nil {
		t.Fatal(err)
	}
	cp2, err := bufCoarseStride.Current(nil, &at)
	if err != nil {
		t.Fatal(err)
	}

	o1, o2 := cp1.ToObservations(), cp2.ToObservations()
	if len(o1) != len(o2) || o1[0].Value != o2[0].Value {
		t.Errorf("checkpoint at seq=%d differs across stride: %+v vs %+v", at, o1, o2)
	}
}

func TestBufferOutOfRange(t *testing.T) {
	buf := NewCircularBuffer(4, 1, NewObserverRegistry())
	for i := 0; i < 10; i++ {
		buf.Push(mkObs("X", schema.ScalarValue("v")))
	}

	if _, _, err := buf.Range(1, 10, nil); err == nil {
		t.Error("expected OutOfRange for from < firstSequence")
	}

	early := uint64(0)
	if _, err := buf.Current(nil, &early); err == nil {
		t.Error("expected OutOfRange for at < firstSequence")
	}
}

func TestBufferRejectsOversizedPayload(t *testing.T) {
	buf := NewCircularBuffer(4, 1, NewObserverRegistry())
	samples := make([]schema.Float, maxObservationPayloadBytes/8+1)
	_, err := buf.Push(mkObs("X", schema.TimeSeriesValue{Samples: samples, Rate: 1}))
	if err == nil {
		t.Fatal("expected TooLarge error")
	}
	agentErr, ok := err.(*Error)
	if !ok || agentErr.Kind != ErrTooLarge {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}
