package agent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mtconnect-go/agent/pkg/schema"
)

// timestampPattern detects an ISO-8601 timestamp as the SHDR line's first
// token.
var timestampPattern = regexp.MustCompile(`^\d{4}-`)

// DecodedSample is one source_key/value pair (or condition/time-series
// group) pulled off an SHDR line, not yet looked up against a Device.
type DecodedSample struct {
	SourceKey string
	Tokens    []string
	Timestamp time.Time
}

// DecodedCommand is a `* name: value`-shaped line, or a bare `* PING`/
// `* PONG <ms>` heartbeat token.
type DecodedCommand struct {
	Name  string
	Value string
}

// DecodedAsset is a completed `* assetId|type|body` declaration, whether
// the body arrived inline or via multiline framing.
type DecodedAsset struct {
	AssetID string
	Type    string
	Body    string
}

// DecodeResult is everything one SHDR line (or the line that completes a
// pending multiline frame) yields. At most one of Asset/Commands/Samples is
// meaningfully populated per call in practice, but the shape allows for a
// line carrying ordinary samples alongside nothing else most of the time.
type DecodeResult struct {
	Samples  []DecodedSample
	Commands []DecodedCommand
	Asset    *DecodedAsset
}

// sourceKeyKind is what the decoder needs to know about a source key to
// decide how many subsequent tokens its value spans: a plain scalar is one
// token, a Condition spans five, a TimeSeries spans three.
type sourceKeyKind int

const (
	KindScalar sourceKeyKind = iota
	KindCondition
	KindTimeSeries
	KindDataSet
)

// LineDecoder turns a stream of SHDR lines into samples/commands/assets. It
// is stateful only across a multiline frame; everything else is decoded
// line-at-a-time. One LineDecoder belongs to one adapter
// connection, mirroring the per-connection decode state the teacher's
// lineprotocol.go keeps (there, a reusable scratch decoder per NATS
// message; here, a reusable multiline accumulator per TCP connection).
type LineDecoder struct {
	ignoreTimestamps bool
	kindOf           func(sourceKey string) sourceKeyKind

	// relativeBase anchors a relativeTime adapter's millisecond-offset
	// timestamps to wall-clock time: the anchor is the agent's clock at
	// connection time, reset on every reconnect by the caller constructing
	// a fresh decoder per connection.
	relativeBase *time.Time

	pending *multilineFrame
}

// SetRelativeBase switches the decoder into relativeTime mode: the first
// token of a line is then read as a millisecond offset from base rather
// than an ISO-8601 timestamp.
func (d *LineDecoder) SetRelativeBase(base time.Time) {
	d.relativeBase = &base
}

type multilineFrame struct {
	tag       string
	sourceKey string // set when framing an ordinary sample value
	asset     *DecodedAsset
	lines     []string
}

// NewLineDecoder builds a decoder. kindOf looks up how many tokens a
// source key's value spans; callers typically close over a Device's
// indices. If kindOf is nil every source key is treated as a scalar.
func NewLineDecoder(ignoreTimestamps bool, kindOf func(string) sourceKeyKind) *LineDecoder {
	if kindOf == nil {
		kindOf = func(string) sourceKeyKind { return KindScalar }
	}
	return &LineDecoder{ignoreTimestamps: ignoreTimestamps, kindOf: kindOf}
}

// Decode processes one line, returning what it produced. now is the agent
// clock, used when the line carries no timestamp or IgnoreTimestamps is
// set.
func (d *LineDecoder) Decode(line string, now time.Time) *DecodeResult {
	if d.pending != nil {
		return d.continueMultiline(line)
	}

	fields := strings.Split(line, "|")
	if len(fields) == 0 {
		return nil
	}

	ts := now
	switch {
	case d.relativeBase != nil:
		if offsetMs, err := strconv.Atoi(fields[0]); err == nil {
			ts = d.relativeBase.Add(time.Duration(offsetMs) * time.Millisecond)
			fields = fields[1:]
		}
	case !d.ignoreTimestamps && timestampPattern.MatchString(fields[0]):
		if parsed, err := time.Parse(time.RFC3339Nano, fields[0]); err == nil {
			ts = parsed
		}
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return nil
	}

	if rest, ok := strings.CutPrefix(fields[0], "*"); ok {
		first := strings.TrimSpace(rest)
		if first == "" {
			return d.decodeCommand(fields[1:], ts)
		}
		return d.decodeCommand(append([]string{first}, fields[1:]...), ts)
	}

	samples := d.decodeSamples(fields, ts)
	if len(samples) == 0 {
		return nil
	}
	return &DecodeResult{Samples: samples}
}

// decodeSamples walks source_key/value tokens, consuming as many following
// tokens as the source key's kind requires, and detects the multiline
// sentinel on the resulting value token.
func (d *LineDecoder) decodeSamples(fields []string, ts time.Time) []DecodedSample {
	var out []DecodedSample
	i := 0
	for i < len(fields) {
		key := fields[i]
		i++
		if i >= len(fields) {
			break // dangling source key with no value: malformed, drop it
		}

		var span int
		switch d.kindOf(key) {
		case KindCondition:
			span = 4 // native_code|native_severity|qualifier|message, plus level already at i
			span++   // level itself
		case KindTimeSeries:
			span = 2 // rate, samples; count already at i
			span++   // count itself
		default:
			span = 1
		}

		end := i + span
		if end > len(fields) {
			end = len(fields)
		}
		value := fields[i:end]
		i = end

		if len(value) == 1 && strings.HasPrefix(value[0], "--multiline--") {
			d.pending = &multilineFrame{tag: "--multiline--" + strings.TrimPrefix(value[0], "--multiline--"), sourceKey: key}
			return out
		}

		out = append(out, DecodedSample{SourceKey: key, Tokens: value, Timestamp: ts})
	}
	return out
}

// decodeCommand handles the "*"-prefixed command lines: asset declarations
// (`assetId|type|body`), heartbeat tokens (`PING`, `PONG <ms>`), and
// `name: value` metadata commands.
func (d *LineDecoder) decodeCommand(fields []string, ts time.Time) *DecodeResult {
	if len(fields) == 0 {
		return nil
	}

	if len(fields) >= 3 {
		assetID, assetType, body := fields[0], fields[1], fields[2]
		if strings.HasPrefix(body, "--multiline--") {
			d.pending = &multilineFrame{
				tag:   "--multiline--" + strings.TrimPrefix(body, "--multiline--"),
				asset: &DecodedAsset{AssetID: assetID, Type: assetType},
			}
			return nil
		}
		return &DecodeResult{Asset: &DecodedAsset{AssetID: assetID, Type: assetType, Body: body}}
	}

	first := strings.TrimSpace(fields[0])
	if first == "PING" {
		return &DecodeResult{Commands: []DecodedCommand{{Name: "PING"}}}
	}
	if rest, ok := strings.CutPrefix(first, "PONG"); ok {
		return &DecodeResult{Commands: []DecodedCommand{{Name: "PONG", Value: strings.TrimSpace(rest)}}}
	}

	name, value, _ := strings.Cut(first, ":")
	return &DecodeResult{Commands: []DecodedCommand{{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)}}}
}

// continueMultiline appends line to the pending frame, or closes it out and
// returns the assembled sample/asset if line is the terminator.
func (d *LineDecoder) continueMultiline(line string) *DecodeResult {
	p := d.pending
	if line == p.tag {
		body := strings.Join(p.lines, "\n")
		d.pending = nil
		if p.asset != nil {
			p.asset.Body = body
			return &DecodeResult{Asset: p.asset}
		}
		return &DecodeResult{Samples: []DecodedSample{{SourceKey: p.sourceKey, Tokens: []string{body}}}}
	}
	p.lines = append(p.lines, line)
	return nil
}

// ParseConditionTokens splits the 5-token block of a Condition value into
// its fields.
func ParseConditionTokens(tokens []string) schema.ConditionValue {
	get := func(i int) string {
		if i < len(tokens) {
			return tokens[i]
		}
		return ""
	}
	return schema.ConditionValue{
		Level:          schema.ParseConditionLevel(get(0)),
		NativeCode:     get(1),
		NativeSeverity: get(2),
		Qualifier:      get(3),
		Message:        get(4),
	}
}

// ParseTimeSeriesTokens splits the 3-token block of a TimeSeries value
// (count|rate|samples) into a rate and sample slice.
func ParseTimeSeriesTokens(tokens []string) (samples []schema.Float, rate schema.Float, err error) {
	if len(tokens) < 3 {
		return nil, 0, newError(ErrProtocolError, "time series requires count|rate|values, got %d tokens", len(tokens))
	}
	r, err := strconv.ParseFloat(tokens[1], 64)
	if err != nil {
		return nil, 0, newError(ErrProtocolError, "invalid time series rate %q", tokens[1])
	}
	for _, s := range strings.Fields(tokens[2]) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, 0, newError(ErrProtocolError, "invalid time series sample %q", s)
		}
		samples = append(samples, schema.Float(v))
	}
	return samples, schema.Float(r), nil
}

// ParseDataSetTokens parses a DataSet value's `k1=v1 k2=v2` token (quoted
// values allowed) into a DataSetValue. A bare key with no `=` maps to a
// nil value (removed/unset).
func ParseDataSetTokens(token string) schema.DataSetValue {
	out := make(schema.DataSetValue)
	for _, field := range splitDataSetFields(token) {
		k, v, has := strings.Cut(field, "=")
		if !has {
			out[k] = nil
			continue
		}
		v = strings.Trim(v, `"`)
		vv := v
		out[k] = &vv
	}
	return out
}

// splitDataSetFields splits on whitespace while keeping double-quoted
// values (which may contain spaces) intact.
func splitDataSetFields(s string) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
