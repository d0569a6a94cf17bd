package schema

import "time"

// Category is the broad kind of signal a DataItem reports.
type Category int

const (
	CategorySample Category = iota
	CategoryEvent
	CategoryCondition
)

func (c Category) String() string {
	switch c {
	case CategorySample:
		return "SAMPLE"
	case CategoryEvent:
		return "EVENT"
	case CategoryCondition:
		return "CONDITION"
	default:
		return "UNKNOWN"
	}
}

// Representation controls how a raw SHDR token is parsed into an
// ObservationValue.
type Representation int

const (
	RepresentationValue Representation = iota
	RepresentationTimeSeries
	RepresentationDiscrete
	RepresentationDataSet
)

func (r Representation) String() string {
	switch r {
	case RepresentationValue:
		return "VALUE"
	case RepresentationTimeSeries:
		return "TIME_SERIES"
	case RepresentationDiscrete:
		return "DISCRETE"
	case RepresentationDataSet:
		return "DATA_SET"
	default:
		return "UNKNOWN"
	}
}

// FilterSpec holds the two independent drop rules applied, in order,
// before dedup: min_delta for Sample DataItems, min_period for any category.
type FilterSpec struct {
	MinDelta  *float64
	MinPeriod *time.Duration
}

// Conversion is the linear transform canonical = (native*Factor)+Offset,
// derived once from a DataItem's unit strings by pkg/units.
type Conversion struct {
	Factor   float64
	Offset   float64
	Required bool
}

// Identity is the no-op conversion used when units are absent or unknown.
func Identity() Conversion {
	return Conversion{Factor: 1, Offset: 0, Required: false}
}

func (c Conversion) Apply(native float64) float64 {
	if !c.Required {
		return native
	}
	return native*c.Factor + c.Offset
}

// DataItemConfig is the parsed, immutable definition of a single signal.
// It is built once at startup from the device configuration file (parsing
// itself is an external collaborator) and never mutated afterwards.
type DataItemConfig struct {
	ID             string
	Name           string
	Source         string
	Category       Category
	Representation Representation
	Type           string
	SubType        string
	NativeUnits    string
	Units          string
	NativeScale    *float64
	Discrete       bool
	Filter         FilterSpec
	Constraints    []string
	ResetTrigger   string
	InitialValue   string

	// Conversion is computed once at startup from NativeUnits/Units/NativeScale.
	Conversion Conversion
}

// EffectiveSource is the key adapters use to address this DataItem: Source
// if set, else Name, else ID.
func (d *DataItemConfig) EffectiveSource() string {
	if d.Source != "" {
		return d.Source
	}
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
