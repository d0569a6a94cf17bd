package units

import "testing"

func TestParseIdentity(t *testing.T) {
	c := Parse("MILLIMETER", "MILLIMETER", nil)
	if c.Required {
		t.Errorf("expected identity transform when native == canonical, got %+v", c)
	}
	if c.Apply(42) != 42 {
		t.Errorf("expected Apply to be a no-op, got %v", c.Apply(42))
	}
}

func TestParseInchToMillimeter(t *testing.T) {
	c := Parse("INCH", "MILLIMETER", nil)
	if !c.Required {
		t.Fatal("expected conversion to be required")
	}
	got := c.Apply(1)
	if got != 25.4 {
		t.Errorf("1 inch -> %v mm, want 25.4", got)
	}
}

func TestParseFahrenheitToCelsius(t *testing.T) {
	c := Parse("FAHRENHEIT", "CELSIUS", nil)
	got := c.Apply(212)
	if got < 99.9 || got > 100.1 {
		t.Errorf("212F -> %v C, want ~100", got)
	}
}

func TestParseCompoundRate(t *testing.T) {
	c := Parse("REVOLUTION/MINUTE", "REVOLUTION/SECOND", nil)
	got := c.Apply(60)
	if got < 0.99 || got > 1.01 {
		t.Errorf("60 rev/min -> %v rev/s, want ~1", got)
	}
}

func TestParseNativeScale(t *testing.T) {
	scale := 10.0
	c := Parse("MILLIMETER", "MILLIMETER", &scale)
	if !c.Required {
		t.Fatal("expected native_scale to force a required conversion")
	}
	got := c.Apply(100)
	if got != 10 {
		t.Errorf("100/scale(10) -> %v, want 10", got)
	}
}

func TestParseUnknownUnitIsIdentity(t *testing.T) {
	c := Parse("FROBNICATE", "MILLIMETER", nil)
	if c.Required {
		t.Errorf("expected unknown unit to degrade to identity, got %+v", c)
	}
}

func TestParseEmptyUnits(t *testing.T) {
	c := Parse("", "", nil)
	if c.Required {
		t.Errorf("expected empty units to be identity")
	}
}
