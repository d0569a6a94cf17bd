package agent

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mtconnect-go/agent/pkg/schema"
)

// DataItem is the runtime, stateful counterpart of a schema.DataItemConfig:
// the immutable definition plus the last-sample/last-string/last-timestamp
// state its filter and dedup checks need. One exists per DataItemConfig,
// built by the Agent facade at startup and fed every decoded observation
// for that id.
//
// This mirrors the teacher's buffer.write path (pkg/metricstore/buffer.go),
// which also has to decide whether an incoming point is new data or a
// no-op worth dropping, but operates on discrete Observations rather than
// a fixed-frequency numeric series, so the state kept is last-value/
// last-timestamp rather than a ring slot.
type DataItem struct {
	Config *schema.DataItemConfig

	mu                  sync.Mutex
	hasSample           bool
	lastSample          float64
	lastString          string
	hasLastEmit         bool
	lastObserved        time.Time
	pendingResetTrigger string
}

// takeResetTrigger returns and clears any trigger recorded by Reset, to be
// attached to the next Observation this DataItem produces.
func (d *DataItem) takeResetTrigger() string {
	t := d.pendingResetTrigger
	d.pendingResetTrigger = ""
	return t
}

// NewDataItem wraps a definition in fresh runtime state.
func NewDataItem(cfg *schema.DataItemConfig) *DataItem {
	return &DataItem{Config: cfg}
}

// Apply runs the fixed-order filter/dedup/conversion checks against one raw
// adapter value and returns the resulting Observation, or nil if the input
// was filtered or deduped. raw is a single scalar token, valid for
// representation=Value and representation=Discrete DataItems (category
// Sample or Event). TimeSeries, DataSet, and Condition values need more
// than one SHDR token to build and go through
// ApplyTimeSeries/ApplyDataSet/ApplyCondition instead, called by
// Agent.applyTokens once it has parsed them.
func (d *DataItem) Apply(raw string, ts time.Time) (*schema.Observation, error) {
	return d.applyValue(raw, ts)
}

// applyValue runs the filter/dedup/conversion steps for a Sample/Event/
// Discrete value already parsed to its native string form.
func (d *DataItem) applyValue(raw string, ts time.Time) (*schema.Observation, error) {
	cfg := d.Config

	d.mu.Lock()
	defer d.mu.Unlock()

	if cfg.Category == schema.CategorySample {
		native, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, newError(ErrProtocolError, "data item %q: not a number: %q", cfg.ID, raw)
		}

		if cfg.Filter.MinDelta != nil && d.hasSample {
			if diff := native - d.lastSample; diff >= -*cfg.Filter.MinDelta && diff <= *cfg.Filter.MinDelta {
				return nil, nil
			}
		}
		if cfg.Filter.MinPeriod != nil && d.hasLastEmit && ts.Sub(d.lastObserved) <= *cfg.Filter.MinPeriod {
			return nil, nil
		}

		d.hasSample = true
		d.lastSample = native
		d.hasLastEmit = true
		d.lastObserved = ts

		canonical := cfg.Conversion.Apply(native)
		return &schema.Observation{
			DataItemID:   cfg.ID,
			Timestamp:    ts,
			Value:        schema.SampleValue(schema.Float(canonical)),
			ResetTrigger: d.takeResetTrigger(),
		}, nil
	}

	// Event/representation=Value or Discrete: min_period still applies
	// unconditionally on category; dedup only for representation=Value
	// and non-discrete.
	if cfg.Filter.MinPeriod != nil && d.hasLastEmit && ts.Sub(d.lastObserved) <= *cfg.Filter.MinPeriod {
		return nil, nil
	}
	if cfg.Representation == schema.RepresentationValue && !cfg.Discrete && d.hasLastEmit && d.lastString == raw {
		return nil, nil
	}

	d.hasLastEmit = true
	d.lastObserved = ts
	d.lastString = raw

	return &schema.Observation{
		DataItemID:   cfg.ID,
		Timestamp:    ts,
		Value:        schema.ScalarValue(raw),
		ResetTrigger: d.takeResetTrigger(),
	}, nil
}

// ApplyTimeSeries builds a TimeSeries Observation. TimeSeries values are
// never deduped or filtered by min_delta/min_period (those only make sense
// for scalar Sample/Event readings); each batch is emitted as-is.
func (d *DataItem) ApplyTimeSeries(samples []schema.Float, rate schema.Float, ts time.Time) *schema.Observation {
	d.mu.Lock()
	d.hasLastEmit = true
	d.lastObserved = ts
	d.mu.Unlock()

	converted := make([]schema.Float, len(samples))
	for i, v := range samples {
		converted[i] = schema.Float(d.Config.Conversion.Apply(float64(v)))
	}
	return &schema.Observation{
		DataItemID: d.Config.ID,
		Timestamp:  ts,
		Value:      schema.TimeSeriesValue{Samples: converted, Rate: rate},
	}
}

// ApplyDataSet builds a DataSet Observation. DataSet values are not deduped
// (a DataSet is a map update, not a scalar reading), but min_period still
// applies.
func (d *DataItem) ApplyDataSet(entries schema.DataSetValue, ts time.Time) *schema.Observation {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Config.Filter.MinPeriod != nil && d.hasLastEmit && ts.Sub(d.lastObserved) <= *d.Config.Filter.MinPeriod {
		return nil
	}
	d.hasLastEmit = true
	d.lastObserved = ts

	return &schema.Observation{
		DataItemID: d.Config.ID,
		Timestamp:  ts,
		Value:      entries,
	}
}

// ApplyCondition builds a Condition Observation. Condition DataItems never
// dedup: every activation carries a distinct native code and is passed
// straight through to the Checkpoint, which owns the activate/clear merge
// semantics.
func (d *DataItem) ApplyCondition(cv schema.ConditionValue, ts time.Time) *schema.Observation {
	return &schema.Observation{
		DataItemID: d.Config.ID,
		Timestamp:  ts,
		Value:      cv,
	}
}

// Reset clears last-sample/last-string state so the next observation is
// re-emitted unconditionally. trigger is recorded on the next Observation
// Apply produces after the reset; ApplyTimeSeries, ApplyDataSet and
// ApplyCondition do not attach it.
func (d *DataItem) Reset(trigger string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasSample = false
	d.hasLastEmit = false
	d.pendingResetTrigger = trigger
}
