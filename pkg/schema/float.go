package schema

import (
	"math"
	"strconv"
)

// Float is used instead of a plain float64 so that MarshalJSON/UnmarshalJSON
// can be overloaded to round-trip NaN as `null`. MTConnect samples that have
// never been reported (a DataItem that has not yet received an observation)
// are represented by NaN rather than a pointer, to avoid the allocation
// overhead of pointer-per-value for what is overwhelmingly the common case.
type Float float64

var NaN Float = Float(math.NaN())

func (f Float) IsNaN() bool {
	return math.IsNaN(float64(f))
}

// MarshalJSON serializes NaN to `null`.
func (f Float) MarshalJSON() ([]byte, error) {
	if f.IsNaN() {
		return []byte("null"), nil
	}

	return []byte(strconv.FormatFloat(float64(f), 'g', -1, 64)), nil
}

// UnmarshalJSON turns `null` into NaN.
func (f *Float) UnmarshalJSON(input []byte) error {
	s := string(input)
	if s == "null" {
		*f = NaN
		return nil
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = Float(val)
	return nil
}
