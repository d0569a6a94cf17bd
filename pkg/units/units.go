package units

import (
	"strings"

	"github.com/mtconnect-go/agent/pkg/schema"
)

// Parse computes the linear transform canonical = (native*factor)+offset for
// a DataItem's nativeUnits/units pair: unknown units degrade to an identity
// transform with Required=false rather than failing, since a malformed unit
// string must not stop ingestion.
//
// nativeUnits may be a compound expression "MEASURE/MEASURE" (e.g.
// "REVOLUTION/MINUTE") or a space-separated 3D triple ("MILLIMETER
// MILLIMETER MILLIMETER"); in the 3D case every component shares the same
// unit so the first token determines the transform. The agent does not
// apply it component-wise: DataItem.Apply parses a Sample value as one
// number, so a space-separated 3D value is rejected as not a number.
func Parse(nativeUnits, canonicalUnits string, nativeScale *float64) schema.Conversion {
	if nativeUnits == "" {
		return schema.Identity()
	}

	first := strings.Fields(nativeUnits)[0]
	if strings.EqualFold(first, canonicalUnits) {
		return applyScale(schema.Identity(), nativeScale)
	}

	measureName, denomName, compound := strings.Cut(first, "/")

	m, ok := lookupMeasure(measureName)
	if !ok {
		return schema.Identity()
	}

	factor := m.factor
	offset := m.offset

	if compound {
		d, ok := lookupDenominator(denomName)
		if !ok {
			return schema.Identity()
		}
		// dividing by a larger time unit shrinks the canonical rate
		factor /= d.factor
	}

	conv := schema.Conversion{
		Factor:   factor,
		Offset:   offset,
		Required: factor != 1 || offset != 0,
	}
	return applyScale(conv, nativeScale)
}

func applyScale(c schema.Conversion, nativeScale *float64) schema.Conversion {
	if nativeScale == nil || *nativeScale == 0 || *nativeScale == 1 {
		return c
	}
	c.Factor /= *nativeScale
	c.Required = true
	return c
}
