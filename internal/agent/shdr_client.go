package agent

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/mtconnect-go/agent/pkg/log"
	"github.com/mtconnect-go/agent/pkg/schema"
	"golang.org/x/time/rate"
)

// AdapterState is the SHDR client's connection state machine:
// Disconnected -> Connecting -> Connected -> Reading, with reconnect after
// any failure.
type AdapterState int

const (
	AdapterDisconnected AdapterState = iota
	AdapterConnecting
	AdapterConnected
	AdapterReading
)

func (s AdapterState) String() string {
	switch s {
	case AdapterConnecting:
		return "CONNECTING"
	case AdapterConnected:
		return "CONNECTED"
	case AdapterReading:
		return "READING"
	default:
		return "DISCONNECTED"
	}
}

// sourceKindLookup answers "how many SHDR tokens does this source key's
// value span" by consulting a Device's DataItem indices, used by
// LineDecoder. One adapter client may feed several devices (the primary
// plus AdditionalDevices), so it tries each in turn.
func sourceKindLookup(devices []*Device) func(string) sourceKeyKind {
	return func(sourceKey string) sourceKeyKind {
		for _, dev := range devices {
			if di, ok := dev.BySource(sourceKey); ok {
				switch {
				case di.Category == schema.CategoryCondition:
					return KindCondition
				case di.Representation == schema.RepresentationTimeSeries:
					return KindTimeSeries
				case di.Representation == schema.RepresentationDataSet:
					return KindDataSet
				default:
					return KindScalar
				}
			}
		}
		return KindScalar
	}
}

// AdapterClient is the SHDR TCP client: one instance per configured
// adapter, running its own reconnect loop on its own goroutine, since
// adapter sockets are owned by the adapter's own thread of control.
//
// Grounded on the teacher's pkg/nats/client.go reconnect/lifecycle shape
// (generalized from a pub/sub client to a raw-TCP line reader) and
// pkg/metricstore/lineprotocol.go's pooled scratch-decode-state idiom
// (generalized from InfluxDB line protocol to SHDR's pipe-delimited
// tokens); reconnect backoff uses golang.org/x/time/rate instead of a
// hand-rolled ticker.
type AdapterClient struct {
	agent   *Agent
	cfg     schema.AdapterConfig
	devices []*Device

	connectionStatusID string

	reconnectInterval time.Duration
	legacyTimeout     time.Duration

	limiter *rate.Limiter

	mu          sync.RWMutex
	state       AdapterState
	meta        AdapterMetadata
	heartbeatMs int // 0 until the adapter announces PONG capability

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

// NewAdapterClient builds a client bound to devices (the primary plus any
// AdditionalDevices, already resolved to *Device by the caller).
func NewAdapterClient(a *Agent, cfg schema.AdapterConfig, devices []*Device, reconnectInterval, legacyTimeout time.Duration) *AdapterClient {
	return &AdapterClient{
		agent:               a,
		cfg:                 cfg,
		devices:             devices,
		connectionStatusID:  fmt.Sprintf("_adapter_%s_%d_connection", cfg.Host, cfg.Port),
		reconnectInterval:   reconnectInterval,
		legacyTimeout:       legacyTimeout,
		limiter:             rate.NewLimiter(rate.Every(reconnectInterval), 1),
		stopCh:              make(chan struct{}),
		stopped:             make(chan struct{}),
	}
}

func (c *AdapterClient) State() AdapterState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *AdapterClient) setState(s AdapterState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Metadata returns the adapter's self-reported version/calibration info,
// populated as `* adapterVersion:`/`* mtconnectVersion:`/`* calibration:`
// commands arrive.
func (c *AdapterClient) Metadata() AdapterMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta
}

// Run is the reconnect loop: Connecting -> dial -> Connected -> Reading ->
// on any error, Disconnected, then wait on the reconnect limiter before the
// next dial. The limiter admits one dial per reconnect interval with a
// burst of one: a dial whose previous limiter wait lies at least one
// interval back goes ahead at once, and only back-to-back failures are
// spaced a full interval apart. It blocks until Stop is called or ctx is
// cancelled.
func (c *AdapterClient) Run(ctx context.Context) {
	defer close(c.stopped)
	defer c.emitConnectionStatus("CLOSED")

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.setState(AdapterConnecting)
		c.emitConnectionStatus("LISTEN")

		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port), 10*time.Second)
		if err != nil {
			log.Warnf("[SHDR]> %s:%d: %v", c.cfg.Host, c.cfg.Port, err)
			c.setState(AdapterDisconnected)
			if werr := c.limiter.Wait(ctx); werr != nil {
				return
			}
			continue
		}

		c.setState(AdapterConnected)
		c.emitConnectionStatus("ESTABLISHED")
		c.injectAutoAvailable()

		err = c.readLoop(ctx, conn)
		conn.Close()
		if err != nil {
			log.Warnf("[SHDR]> %s:%d: connection lost: %v", c.cfg.Host, c.cfg.Port, err)
		}
		c.setState(AdapterDisconnected)
		c.emitConnectionStatus("CLOSED")

		if werr := c.limiter.Wait(ctx); werr != nil {
			return
		}
	}
}

// Stop ends the reconnect loop and closes the current connection (via
// ctx cancellation, which the caller owns); Run's return closes c.stopped,
// which callers can wait on to join the adapter goroutine.
func (c *AdapterClient) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *AdapterClient) Stopped() <-chan struct{} {
	return c.stopped
}

// readLoop reads lines until EOF, a read error, a missed heartbeat, or
// legacyTimeout without any line, decoding and ingesting each one. Every
// such failure returns here and Run reconnects; no failure ends the adapter
// for good.
func (c *AdapterClient) readLoop(ctx context.Context, conn net.Conn) error {
	c.setState(AdapterReading)
	decoder := NewLineDecoder(c.agent.cfg.IgnoreTimestamps, sourceKindLookup(c.devices))
	if c.cfg.RelativeTime {
		decoder.SetRelativeBase(time.Now())
	}

	lines := make(chan string, 16)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()

	var pingTicker *time.Ticker
	var pingC <-chan time.Time
	lastPong := time.Now()

	// legacyC fires once legacyTimeout passes without a line being read.
	var legacy *time.Timer
	var legacyC <-chan time.Time
	if c.legacyTimeout > 0 {
		legacy = time.NewTimer(c.legacyTimeout)
		defer legacy.Stop()
		legacyC = legacy.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case err := <-errCh:
			return err
		case <-legacyC:
			return newError(ErrAdapterDisconnected, "nothing read from %s:%d within %s", c.cfg.Host, c.cfg.Port, c.legacyTimeout)
		case line := <-lines:
			if legacy != nil {
				legacy.Reset(c.legacyTimeout)
			}
			result := decoder.Decode(line, time.Now())
			if result == nil {
				continue
			}
			for _, cmd := range result.Commands {
				switch cmd.Name {
				case "PONG":
					lastPong = time.Now()
					if ms, err := strconv.Atoi(cmd.Value); err == nil && ms > 0 {
						c.mu.Lock()
						if c.heartbeatMs == 0 {
							c.heartbeatMs = ms
							pingTicker = time.NewTicker(time.Duration(ms) * time.Millisecond)
							pingC = pingTicker.C
						}
						c.mu.Unlock()
					}
				case "PING":
					fmt.Fprintf(conn, "* PONG %d\n", c.currentHeartbeatMs())
				default:
					c.recordMetadata(cmd)
				}
			}
			if result.Asset != nil {
				c.agent.PutAsset(schema.Asset{
					AssetID:   result.Asset.AssetID,
					Type:      result.Asset.Type,
					Body:      result.Asset.Body,
					Timestamp: time.Now(),
				})
			}
			for _, s := range result.Samples {
				di := c.resolveDataItem(s.SourceKey)
				if di == "" {
					log.Warnf("[SHDR]> %s:%d: unknown source key %q", c.cfg.Host, c.cfg.Port, s.SourceKey)
					continue
				}
				if err := c.agent.Ingest(di, s.Tokens, s.Timestamp); err != nil {
					log.Warnf("[SHDR]> ingest %q: %v", di, err)
				}
			}
		case <-pingC:
			if time.Since(lastPong) > 2*time.Duration(c.currentHeartbeatMs())*time.Millisecond {
				if pingTicker != nil {
					pingTicker.Stop()
				}
				return newError(ErrAdapterDisconnected, "missed heartbeat from %s:%d", c.cfg.Host, c.cfg.Port)
			}
			fmt.Fprintf(conn, "* PING\n")
		}
	}
}

func (c *AdapterClient) currentHeartbeatMs() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heartbeatMs
}

func (c *AdapterClient) resolveDataItem(sourceKey string) string {
	for _, dev := range c.devices {
		if di, ok := dev.BySource(sourceKey); ok {
			return di.ID
		}
	}
	return ""
}

func (c *AdapterClient) recordMetadata(cmd DecodedCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch cmd.Name {
	case "adapterVersion":
		c.meta.AdapterVersion = cmd.Value
	case "mtconnectVersion":
		c.meta.MTConnectVersion = cmd.Value
	case "calibration":
		c.meta.Calibration = cmd.Value
	}
}

// injectAutoAvailable implements the auto-available option: on connect,
// inject an AVAILABLE observation for every AVAILABILITY DataItem on a
// device bound to this adapter.
func (c *AdapterClient) injectAutoAvailable() {
	if !c.cfg.AutoAvailable {
		return
	}
	for _, dev := range c.devices {
		if dev.Availability != nil {
			if err := c.agent.Ingest(dev.Availability.ID, []string{"AVAILABLE"}, time.Now()); err != nil {
				log.Warnf("[SHDR]> auto-available for %s: %v", dev.Name(), err)
			}
		}
	}
}

// emitConnectionStatus pushes a synthetic observation on this adapter's
// built-in connection-status DataItem, distinct from any device-declared
// DataItem and therefore not routed through Agent.Ingest's id lookup,
// which would reject it as unknown.
func (c *AdapterClient) emitConnectionStatus(status string) {
	obs := schema.Observation{
		DataItemID: c.connectionStatusID,
		Timestamp:  time.Now(),
		Value:      schema.ScalarValue(status),
	}
	if _, err := c.agent.buffer.Push(obs); err != nil {
		log.Warnf("[SHDR]> connection status push: %v", err)
	}
}
