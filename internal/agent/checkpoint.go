package agent

import (
	"sort"

	"github.com/mtconnect-go/agent/pkg/schema"
)

// Checkpoint is a mapping from DataItem id to the most recent Observation as
// of some sequence. For Condition DataItems the value is a set of active
// activations keyed by native code.
//
// Checkpoint is not safe for concurrent use by itself; the CircularBuffer
// serializes all mutation under its own push lock and hands out Filter/Clone
// copies to readers instead of sharing the live instance.
type Checkpoint struct {
	latest     map[string]schema.Observation
	conditions map[string]map[string]schema.Observation
}

// NewCheckpoint returns an empty Checkpoint.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		latest:     make(map[string]schema.Observation),
		conditions: make(map[string]map[string]schema.Observation),
	}
}

// Put applies obs to the checkpoint. Sample/Event observations replace the
// prior entry for their DataItem; Condition observations merge into the
// activation set.
func (c *Checkpoint) Put(obs schema.Observation) {
	cv, isCondition := obs.Value.(schema.ConditionValue)
	if !isCondition {
		c.latest[obs.DataItemID] = obs
		return
	}

	activations := c.conditions[obs.DataItemID]
	if activations == nil {
		activations = make(map[string]schema.Observation)
		c.conditions[obs.DataItemID] = activations
	}

	switch cv.Level {
	case schema.ConditionUnavailable:
		for k := range activations {
			delete(activations, k)
		}
		activations[""] = obs
	case schema.ConditionNormal:
		if cv.NativeCode == "" {
			for k := range activations {
				delete(activations, k)
			}
		} else {
			delete(activations, cv.NativeCode)
		}
		if len(activations) == 0 {
			activations[""] = obs
		}
	default: // Warning, Fault: activate/replace
		delete(activations, "")
		activations[cv.NativeCode] = obs
	}
}

// Filter returns a copy of the checkpoint restricted to the given DataItem
// ids. A nil or empty ids set returns a full copy.
func (c *Checkpoint) Filter(ids map[string]bool) *Checkpoint {
	out := NewCheckpoint()
	for id, obs := range c.latest {
		if len(ids) == 0 || ids[id] {
			out.latest[id] = obs
		}
	}
	for id, activations := range c.conditions {
		if len(ids) == 0 || ids[id] {
			copied := make(map[string]schema.Observation, len(activations))
			for k, v := range activations {
				copied[k] = v
			}
			out.conditions[id] = copied
		}
	}
	return out
}

// Clone returns a deep copy of the checkpoint, used for the buffer's base
// and periodic stride snapshots.
func (c *Checkpoint) Clone() *Checkpoint {
	return c.Filter(nil)
}

// ToObservations returns the checkpoint's contents as an ordered list,
// suitable for serializing a "current" response. Order is by DataItem id,
// and within a DataItem's condition activations, by native code, so output
// is deterministic for a given checkpoint state.
func (c *Checkpoint) ToObservations() []schema.Observation {
	out := make([]schema.Observation, 0, len(c.latest)+len(c.conditions))
	for _, obs := range c.latest {
		out = append(out, obs)
	}
	for _, activations := range c.conditions {
		codes := make([]string, 0, len(activations))
		for code := range activations {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			out = append(out, activations[code])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DataItemID < out[j].DataItemID
	})
	return out
}
