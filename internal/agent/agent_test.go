package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtconnect-go/agent/pkg/schema"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BufferSize = 64
	cfg.CheckpointFrequency = 8
	a, err := New(cfg, []*schema.DeviceConfig{sampleDeviceConfig()})
	require.NoError(t, err)
	return a
}

// TestAgentPutAssetViaMultilineDecode covers a multiline asset declaration
// decoded off the wire and handed to PutAsset end to end: it must be
// retrievable with its joined body.
func TestAgentPutAssetViaMultilineDecode(t *testing.T) {
	a := newTestAgent(t)
	d := NewLineDecoder(false, nil)

	res := d.Decode("*|A1|CuttingTool|--multiline--ASSET", time.Now())
	require.Nil(t, res)
	res = d.Decode("<Body line 1>", time.Now())
	require.Nil(t, res)
	res = d.Decode("<Body line 2>", time.Now())
	require.Nil(t, res)
	res = d.Decode("--multiline--ASSET", time.Now())
	require.NotNil(t, res)
	require.NotNil(t, res.Asset)

	a.PutAsset(schema.Asset{
		AssetID:    res.Asset.AssetID,
		Type:       res.Asset.Type,
		DeviceUUID: "uuid-1",
		Timestamp:  time.Now(),
		Body:       res.Asset.Body,
	})

	got, err := a.Asset("A1")
	require.NoError(t, err)
	require.Equal(t, "<Body line 1>\n<Body line 2>", got.Body)
	require.Equal(t, "CuttingTool", got.Type)
}

// TestAgentPutAssetTouchesAssetChanged verifies that putting an asset for a
// device emits an observation on that device's AssetChanged DataItem,
// observable through Current.
func TestAgentPutAssetTouchesAssetChanged(t *testing.T) {
	cfg := sampleDeviceConfig()
	cfg.DataItems = append(cfg.DataItems, &schema.DataItemConfig{ID: "asset_chg", Type: "ASSET_CHANGED", Category: schema.CategoryEvent})
	a, err := New(DefaultConfig(), []*schema.DeviceConfig{cfg})
	require.NoError(t, err)

	a.PutAsset(schema.Asset{AssetID: "A1", Type: "CuttingTool", DeviceUUID: "uuid-1"})

	cp, err := a.Current("", []string{"asset_chg"}, nil)
	require.NoError(t, err)
	observations := cp.Checkpoint.ToObservations()
	require.Len(t, observations, 1)
	require.Equal(t, "asset_chg", observations[0].DataItemID)
	require.Equal(t, schema.ScalarValue("CuttingTool"), observations[0].Value)
}

// TestAgentStreamDataReadyOnPush exercises Agent.Stream end to end: a push
// that happens while a stream consumer is waiting must surface as a single
// DataReady chunk carrying the pushed observation's sequence.
func TestAgentStreamDataReadyOnPush(t *testing.T) {
	a := newTestAgent(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, stop, err := a.Stream(ctx, "", []string{"x_pos"}, a.NextSequence(), 10, 50*time.Millisecond, time.Second)
	require.NoError(t, err)
	defer stop()

	go func() {
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, a.Ingest("x_pos", []string{"1.0"}, time.Now()))
	}()

	select {
	case chunk := <-out:
		require.Equal(t, EventDataReady, chunk.Event)
		require.NotNil(t, chunk.Sample)
		require.Len(t, chunk.Sample.Observations, 1)
		require.Equal(t, "x_pos", chunk.Sample.Observations[0].DataItemID)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not deliver DataReady")
	}
}

// TestAgentStreamHeartbeatThenTimeout exercises Stream's use of the Change
// Observer's liveness signals when nothing is pushed.
func TestAgentStreamHeartbeatThenTimeout(t *testing.T) {
	a := newTestAgent(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, stop, err := a.Stream(ctx, "", []string{"x_pos"}, a.NextSequence(), 10, 20*time.Millisecond, 100*time.Millisecond)
	require.NoError(t, err)
	defer stop()

	heartbeats := 0
	var final Event
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case chunk, ok := <-out:
			if !ok {
				break loop
			}
			if chunk.Event == EventHeartbeat {
				heartbeats++
				continue
			}
			final = chunk.Event
			break loop
		case <-timeout:
			t.Fatal("stream did not complete in time")
		}
	}

	require.Equal(t, EventTimeout, final)
	require.Equal(t, 5, heartbeats)
}

// TestAgentResetReemitsAfterReset exercises Reset across the facade rather
// than directly on a DataItem: a repeated Event value is deduped unless a
// Reset intervenes.
func TestAgentResetReemitsAfterReset(t *testing.T) {
	a := newTestAgent(t)

	require.NoError(t, a.Ingest("avail", []string{"AVAILABLE"}, time.Now()))
	before := a.NextSequence()

	require.NoError(t, a.Ingest("avail", []string{"AVAILABLE"}, time.Now().Add(time.Second)))
	require.Equal(t, before, a.NextSequence(), "repeated value should be deduped")

	require.NoError(t, a.Reset("avail", "MANUAL"))
	require.NoError(t, a.Ingest("avail", []string{"AVAILABLE"}, time.Now().Add(2*time.Second)))

	require.Equal(t, before+1, a.NextSequence(), "value after reset should re-emit")
}
