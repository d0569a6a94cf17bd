package agent

import (
	"testing"
	"time"
)

func conditionKind(string) sourceKeyKind { return KindCondition }
func timeSeriesKind(string) sourceKeyKind { return KindTimeSeries }
func dataSetKind(string) sourceKeyKind { return KindDataSet }

func TestLineDecoderScalarSample(t *testing.T) {
	d := NewLineDecoder(false, nil)
	res := d.Decode("2024-01-01T00:00:00Z|Xact|123", time.Now())
	if res == nil || len(res.Samples) != 1 {
		t.Fatalf("expected one sample, got %+v", res)
	}
	s := res.Samples[0]
	if s.SourceKey != "Xact" || len(s.Tokens) != 1 || s.Tokens[0] != "123" {
		t.Errorf("unexpected sample: %+v", s)
	}
	if s.Timestamp.Year() != 2024 {
		t.Errorf("expected parsed timestamp, got %v", s.Timestamp)
	}
}

func TestLineDecoderNoTimestampUsesNow(t *testing.T) {
	d := NewLineDecoder(false, nil)
	now := time.Now()
	res := d.Decode("Xact|123", now)
	if res.Samples[0].Timestamp != now {
		t.Error("expected fallback to supplied now")
	}
}

func TestLineDecoderMultipleScalarSamples(t *testing.T) {
	d := NewLineDecoder(false, nil)
	res := d.Decode("Xact|123|Yact|456", time.Now())
	if len(res.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(res.Samples))
	}
}

func TestLineDecoderConditionSpansFiveTokens(t *testing.T) {
	d := NewLineDecoder(false, conditionKind)
	res := d.Decode("Ctmp|warning|100|H|H|overheat|Xact|1", time.Now())
	if len(res.Samples) != 2 {
		t.Fatalf("expected 2 samples (condition + scalar), got %+v", res.Samples)
	}
	cond := res.Samples[0]
	if cond.SourceKey != "Ctmp" || len(cond.Tokens) != 5 {
		t.Errorf("expected condition to span 5 tokens, got %+v", cond)
	}
	cv := ParseConditionTokens(cond.Tokens)
	if cv.Level.String() != "Warning" || cv.NativeCode != "100" {
		t.Errorf("unexpected condition value: %+v", cv)
	}
	if res.Samples[1].SourceKey != "Xact" {
		t.Errorf("expected scalar sample after condition, got %+v", res.Samples[1])
	}
}

func TestLineDecoderTimeSeriesSpansThreeTokens(t *testing.T) {
	d := NewLineDecoder(false, timeSeriesKind)
	res := d.Decode("Vib|3|100|1.0 2.0 3.0", time.Now())
	if len(res.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(res.Samples))
	}
	samples, rate, err := ParseTimeSeriesTokens(res.Samples[0].Tokens)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 || float64(rate) != 100 {
		t.Errorf("unexpected time series: samples=%v rate=%v", samples, rate)
	}
}

func TestLineDecoderDataSetToken(t *testing.T) {
	d := NewLineDecoder(false, dataSetKind)
	res := d.Decode(`Vars|a=1 b="two words" c`, time.Now())
	if len(res.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(res.Samples))
	}
	ds := ParseDataSetTokens(res.Samples[0].Tokens[0])
	if ds["a"] == nil || *ds["a"] != "1" {
		t.Errorf("expected a=1, got %+v", ds["a"])
	}
	if ds["b"] == nil || *ds["b"] != "two words" {
		t.Errorf("expected quoted value preserved, got %+v", ds["b"])
	}
	if ds["c"] != nil {
		t.Errorf("expected bare key c to map to nil, got %v", *ds["c"])
	}
}

func TestLineDecoderPingPong(t *testing.T) {
	d := NewLineDecoder(false, nil)
	res := d.Decode("* PING", time.Now())
	if len(res.Commands) != 1 || res.Commands[0].Name != "PING" {
		t.Errorf("expected PING command, got %+v", res.Commands)
	}

	res = d.Decode("* PONG 10000", time.Now())
	if len(res.Commands) != 1 || res.Commands[0].Name != "PONG" || res.Commands[0].Value != "10000" {
		t.Errorf("expected PONG 10000, got %+v", res.Commands)
	}
}

func TestLineDecoderMetadataCommand(t *testing.T) {
	d := NewLineDecoder(false, nil)
	res := d.Decode("* adapterVersion: 1.5.0.0", time.Now())
	if len(res.Commands) != 1 || res.Commands[0].Name != "adapterVersion" || res.Commands[0].Value != "1.5.0.0" {
		t.Errorf("unexpected command: %+v", res.Commands)
	}
}

func TestLineDecoderAssetDeclarationInline(t *testing.T) {
	d := NewLineDecoder(false, nil)
	res := d.Decode("*|A1|CuttingTool|<Body/>", time.Now())
	if res.Asset == nil {
		t.Fatal("expected asset")
	}
	if res.Asset.AssetID != "A1" || res.Asset.Type != "CuttingTool" || res.Asset.Body != "<Body/>" {
		t.Errorf("unexpected asset: %+v", res.Asset)
	}
}

// TestLineDecoderMultilineAsset covers an asset body framed across several
// lines with a --multiline--TAG terminator.
func TestLineDecoderMultilineAsset(t *testing.T) {
	d := NewLineDecoder(false, nil)

	res := d.Decode("*|A1|CuttingTool|--multiline--ASSET", time.Now())
	if res != nil {
		t.Fatalf("expected nil result while frame is open, got %+v", res)
	}

	res = d.Decode("<Body line 1>", time.Now())
	if res != nil {
		t.Fatalf("expected nil result mid-frame, got %+v", res)
	}

	res = d.Decode("<Body line 2>", time.Now())
	if res != nil {
		t.Fatalf("expected nil result mid-frame, got %+v", res)
	}

	res = d.Decode("--multiline--ASSET", time.Now())
	if res == nil || res.Asset == nil {
		t.Fatal("expected completed asset")
	}
	if res.Asset.Body != "<Body line 1>\n<Body line 2>" {
		t.Errorf("unexpected body: %q", res.Asset.Body)
	}
}

// TestLineDecoderRelativeTimeAnchorsToBase checks that a relativeTime
// adapter's first token is read as a millisecond offset from the anchor
// set at connection time.
func TestLineDecoderRelativeTimeAnchorsToBase(t *testing.T) {
	d := NewLineDecoder(false, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.SetRelativeBase(base)

	res := d.Decode("1500|Xact|123", time.Now())
	if res == nil || len(res.Samples) != 1 {
		t.Fatalf("expected one sample, got %+v", res)
	}
	want := base.Add(1500 * time.Millisecond)
	if !res.Samples[0].Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, res.Samples[0].Timestamp)
	}
}

func TestLineDecoderMultilineSample(t *testing.T) {
	d := NewLineDecoder(false, nil)

	res := d.Decode("Message|--multiline--MSG", time.Now())
	if res != nil {
		t.Fatalf("expected nil while frame is open, got %+v", res)
	}
	res = d.Decode("line one", time.Now())
	if res != nil {
		t.Fatal("expected nil mid-frame")
	}
	res = d.Decode("--multiline--MSG", time.Now())
	if res == nil || len(res.Samples) != 1 {
		t.Fatalf("expected completed sample, got %+v", res)
	}
	if res.Samples[0].Tokens[0] != "line one" {
		t.Errorf("unexpected body: %q", res.Samples[0].Tokens[0])
	}
}
