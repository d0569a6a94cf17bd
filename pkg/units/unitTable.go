// Package units implements MTConnect's native-units vocabulary and the
// linear transforms used to convert a DataItem's raw adapter value into its
// canonical unit.
package units

import "strings"

// measure describes one entry of the MTConnect unit vocabulary: its factor
// relative to the SI (or SI-derived) canonical unit of the same quantity,
// and whether it additionally requires an additive offset (temperature).
type measure struct {
	factor float64
	offset float64
}

// InvalidMeasure is an identity measure (factor 1, offset 0). The lookup
// functions below do not return it: a miss yields the zero measure and
// false.
var InvalidMeasure = measure{factor: 1, offset: 0}

// measureTable holds every MTConnect unit name this agent recognizes, keyed
// by the exact token as it appears in a DataItem's `units`/`nativeUnits`
// attribute. Values are the factor to multiply a native reading by (and, for
// temperature, the offset to add after) to arrive at the paired canonical
// unit MTConnect defines for that quantity.
var measureTable = map[string]measure{
	// Already canonical: identity.
	"MILLIMETER":          {factor: 1},
	"DEGREE":              {factor: 1},
	"SECOND":              {factor: 1},
	"CELSIUS":             {factor: 1},
	"PERCENT":             {factor: 1},
	"COUNT":               {factor: 1},
	"REVOLUTION":          {factor: 1},
	"AMPERE":              {factor: 1},
	"VOLT":                {factor: 1},
	"WATT":                {factor: 1},
	"HERTZ":               {factor: 1},
	"NEWTON":              {factor: 1},
	"PASCAL":              {factor: 1},
	"JOULE":               {factor: 1},
	"GRAM":                {factor: 1},
	"LITER":               {factor: 1},
	"DECIBEL":             {factor: 1},
	"UNIT_VECTOR":         {factor: 1},

	// Non-canonical native units with a fixed conversion factor.
	"INCH":                {factor: 25.4},            // -> MILLIMETER
	"FOOT":                {factor: 304.8},           // -> MILLIMETER
	"CENTIMETER":          {factor: 10},               // -> MILLIMETER
	"METER":               {factor: 1000},             // -> MILLIMETER
	"MINUTE":              {factor: 60},               // -> SECOND
	"HOUR":                {factor: 3600},             // -> SECOND
	"MILLISECOND":         {factor: 0.001},             // -> SECOND
	"POUND":               {factor: 453.59237},        // -> GRAM
	"KILOGRAM":            {factor: 1000},             // -> GRAM
	"GALLON":              {factor: 3.785411784},      // -> LITER
	"RADIAN":              {factor: 180 / 3.141592653589793}, // -> DEGREE
	"FAHRENHEIT":          {factor: 5.0 / 9.0, offset: -32 * 5.0 / 9.0}, // -> CELSIUS
}

// rateDenominators are the time units of measures MTConnect expresses as "<MEASURE>/<TIME>", e.g.
// REVOLUTION/MINUTE or MILLIMETER/SECOND. Parse handles the division by
// looking up each side of the "/" independently and dividing the factors.
var rateDenominators = map[string]measure{
	"SECOND": {factor: 1},
	"MINUTE": {factor: 60},
	"HOUR":   {factor: 3600},
}

func lookupMeasure(name string) (measure, bool) {
	m, ok := measureTable[strings.ToUpper(name)]
	return m, ok
}

func lookupDenominator(name string) (measure, bool) {
	m, ok := rateDenominators[strings.ToUpper(name)]
	return m, ok
}
