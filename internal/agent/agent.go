package agent

import (
	"context"
	"sync"
	"time"

	"github.com/mtconnect-go/agent/pkg/log"
	"github.com/mtconnect-go/agent/pkg/schema"
)

// Agent is the single entry point (C10) binding the buffer, device
// catalog, asset store, and adapter clients together, mirroring the shape
// of the teacher's metricstore.go: one long-lived struct built once at
// startup (Init), read/written by many goroutines thereafter, with a small
// set of background workers hung off it.
//
// Every globally observable datum besides InstanceID lives behind this
// struct rather than a package-level singleton.
type Agent struct {
	cfg        Config
	InstanceID int64
	startTime  time.Time

	buffer    *CircularBuffer
	observers *ObserverRegistry
	assets    *AssetStore

	mu        sync.RWMutex
	devices   map[string]*Device // by device id
	byName    map[string]*Device
	dataItems map[string]*DataItem // by DataItem id, global across all devices

	adapters []*AdapterClient

	metrics     *Metrics
	eventBridge *EventBridge
}

// New builds an Agent from its configuration and the already-parsed device
// tree (XML parsing of the device configuration file is an external
// collaborator). InstanceID is set to the epoch seconds of startup.
func New(cfg Config, deviceConfigs []*schema.DeviceConfig) (*Agent, error) {
	a := &Agent{
		cfg:       cfg,
		startTime: time.Now(),
		observers: NewObserverRegistry(),
		assets:    NewAssetStore(cfg.MaxAssets),
		devices:   make(map[string]*Device),
		byName:    make(map[string]*Device),
		dataItems: make(map[string]*DataItem),
	}
	a.InstanceID = a.startTime.Unix()
	a.buffer = NewCircularBuffer(uint64(cfg.BufferSize), uint64(cfg.CheckpointFrequency), a.observers)

	for _, dc := range deviceConfigs {
		dev, err := NewDevice(dc)
		if err != nil {
			return nil, err
		}
		if _, dup := a.devices[dev.Config.ID]; dup {
			return nil, newError(ErrConfigError, "duplicate device id %q", dev.Config.ID)
		}
		a.devices[dev.Config.ID] = dev
		a.byName[dev.Name()] = dev

		for _, di := range dev.AllDataItems() {
			if _, dup := a.dataItems[di.ID]; dup {
				return nil, newError(ErrConfigError, "data item id %q reused across devices", di.ID)
			}
			a.dataItems[di.ID] = NewDataItem(di)
		}
	}

	a.assets.OnRemoved(a.onAssetRemoved)
	return a, nil
}

// SetMetrics and SetEventBridge wire the optional observability
// collaborators. Both are safe to leave unset.
func (a *Agent) SetMetrics(m *Metrics)         { a.metrics = m }
func (a *Agent) SetEventBridge(b *EventBridge) { a.eventBridge = b }

// Device looks up a device by id or, failing that, by name.
func (a *Agent) Device(nameOrID string) (*Device, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if nameOrID == "" {
		if len(a.devices) == 1 {
			for _, d := range a.devices {
				return d, nil
			}
		}
		return nil, newError(ErrInvalidRequest, "device must be specified when more than one device is configured")
	}
	if d, ok := a.devices[nameOrID]; ok {
		return d, nil
	}
	if d, ok := a.byName[nameOrID]; ok {
		return d, nil
	}
	return nil, newError(ErrUnknownDevice, "unknown device %q", nameOrID)
}

// Devices returns every configured device, for probe() with no device
// filter.
func (a *Agent) Devices() []*Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Device, 0, len(a.devices))
	for _, d := range a.devices {
		out = append(out, d)
	}
	return out
}

// Probe is a pure read of the device tree.
func (a *Agent) Probe(device string) ([]*Device, error) {
	if device == "" {
		return a.Devices(), nil
	}
	d, err := a.Device(device)
	if err != nil {
		return nil, err
	}
	return []*Device{d}, nil
}

// resolveFilter turns a device name (optional) plus a set of DataItem
// identifiers (ids, names, or sources; empty means "all") into the id set
// the buffer/checkpoint machinery filters on. Any path-based restriction is
// applied by the caller (an HTTP collaborator) before this filter set is
// built; this method only resolves identifiers to ids.
func (a *Agent) resolveFilter(device string, idents []string) (map[string]bool, error) {
	if len(idents) == 0 {
		if device == "" {
			return nil, nil
		}
		dev, err := a.Device(device)
		if err != nil {
			return nil, err
		}
		out := make(map[string]bool)
		for _, di := range dev.AllDataItems() {
			out[di.ID] = true
		}
		return out, nil
	}

	var devs []*Device
	if device != "" {
		dev, err := a.Device(device)
		if err != nil {
			return nil, err
		}
		devs = []*Device{dev}
	} else {
		devs = a.Devices()
	}

	out := make(map[string]bool, len(idents))
	for _, ident := range idents {
		found := false
		for _, dev := range devs {
			if di, ok := dev.ByID(ident); ok {
				out[di.ID] = true
				found = true
				break
			}
			if di, ok := dev.ByName(ident); ok {
				out[di.ID] = true
				found = true
				break
			}
			if di, ok := dev.BySource(ident); ok {
				out[di.ID] = true
				found = true
				break
			}
		}
		if !found {
			return nil, newError(ErrUnknownDataItem, "unknown data item %q", ident)
		}
	}
	return out, nil
}

// CurrentResult is the return value of Current: the sequence the
// checkpoint reflects, plus the checkpoint itself.
type CurrentResult struct {
	Sequence   uint64
	Checkpoint *Checkpoint
}

// Current returns the DataItem checkpoint as of atSeq, or the running head
// if atSeq is nil.
func (a *Agent) Current(device string, idents []string, atSeq *uint64) (*CurrentResult, error) {
	filter, err := a.resolveFilter(device, idents)
	if err != nil {
		return nil, err
	}
	cp, err := a.buffer.Current(filter, atSeq)
	if err != nil {
		return nil, err
	}
	seq := a.buffer.NextSequence()
	if seq > 0 {
		seq--
	}
	if atSeq != nil {
		seq = *atSeq
	}
	return &CurrentResult{Sequence: seq, Checkpoint: cp}, nil
}

// SampleResult is the return value of Sample.
type SampleResult struct {
	FirstSequence uint64
	NextSequence  uint64
	Observations  []schema.Observation
}

// Sample returns a page of buffered observations starting at from,
// enforcing the configured maxCount.
func (a *Agent) Sample(device string, idents []string, from uint64, count int) (*SampleResult, error) {
	if count <= 0 {
		count = a.cfg.MaxSampleCount
	}
	if count > a.cfg.MaxSampleCount {
		return nil, newError(ErrTooLarge, "count=%d exceeds configured maximum %d", count, a.cfg.MaxSampleCount)
	}
	filter, err := a.resolveFilter(device, idents)
	if err != nil {
		return nil, err
	}
	obs, next, err := a.buffer.Range(from, count, filter)
	if err != nil {
		return nil, err
	}
	return &SampleResult{FirstSequence: a.buffer.FirstSequence(), NextSequence: next, Observations: obs}, nil
}

// FirstSequence, NextSequence, LastSequence, BufferSize report the header
// fields every streaming response carries.
func (a *Agent) FirstSequence() uint64 { return a.buffer.FirstSequence() }
func (a *Agent) NextSequence() uint64  { return a.buffer.NextSequence() }
func (a *Agent) LastSequence() uint64  { return a.buffer.LastSequence() }
func (a *Agent) BufferSize() uint64    { return a.buffer.Capacity() }
func (a *Agent) CreationTime() time.Time { return a.startTime }

// StreamChunk is one item a Stream consumer receives: either a sample
// chunk or a liveness signal (heartbeat/timeout) with no new data.
type StreamChunk struct {
	Event   Event
	Sample  *SampleResult
}

// Stream is a lazy sequence of sample chunks delivered as they become
// available via the Change Observer, until ctx is cancelled. Each
// DataReady wakeup is followed by exactly one Sample() call and the
// observer's cursor is advanced to the returned NextSequence, so chunks
// never overlap or skip a sequence.
func (a *Agent) Stream(ctx stopSignal, device string, idents []string, from uint64, count int, heartbeat, timeout time.Duration) (<-chan StreamChunk, func(), error) {
	filter, err := a.resolveFilter(device, idents)
	if err != nil {
		return nil, nil, err
	}
	obs := a.observers.Register(filter, from)

	out := make(chan StreamChunk)
	done := make(chan struct{})
	stop := func() {
		close(done)
		obs.Close()
	}

	go func() {
		defer close(out)
		cursor := from
		remaining := timeout
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			default:
			}

			ev := obs.Wait(remaining, heartbeat)
			if heartbeat > 0 {
				remaining -= heartbeat
				if remaining < 0 {
					remaining = 0
				}
			}

			switch ev {
			case EventDataReady:
				res, err := a.Sample(device, idents, cursor, count)
				if err != nil {
					return
				}
				cursor = res.NextSequence
				obs.Advance(cursor)
				select {
				case out <- StreamChunk{Event: ev, Sample: res}:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			case EventHeartbeat:
				select {
				case out <- StreamChunk{Event: ev}:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			case EventTimeout:
				select {
				case out <- StreamChunk{Event: ev}:
				case <-ctx.Done():
				case <-done:
				}
				return
			}
		}
	}()

	return out, stop, nil
}

// stopSignal is the minimal context.Context surface Stream needs; any
// context.Context satisfies it.
type stopSignal interface {
	Done() <-chan struct{}
}

// Ingest is the data-path entry every decoded SHDR sample (or any other
// ingress collaborator) calls: look up the DataItem by id, apply its
// filter/dedup/conversion pipeline, and push the result into the buffer,
// notifying observers and mirroring to the event bridge.
func (a *Agent) Ingest(dataItemID string, tokens []string, ts time.Time) error {
	a.mu.RLock()
	di, ok := a.dataItems[dataItemID]
	a.mu.RUnlock()
	if !ok {
		log.Warnf("[AGENT]> ingest: unknown data item %q, dropping", dataItemID)
		return nil
	}

	obs, err := a.applyTokens(di, tokens, ts)
	if err != nil {
		log.Warnf("[AGENT]> ingest %q: %v", dataItemID, err)
		if a.metrics != nil {
			a.metrics.ObservationsDropped.Inc()
		}
		return nil
	}
	if obs == nil {
		if a.metrics != nil {
			a.metrics.ObservationsFiltered.Inc()
		}
		return nil
	}

	seq, err := a.buffer.Push(*obs)
	if err != nil {
		log.Warnf("[AGENT]> push %q: %v", dataItemID, err)
		if a.metrics != nil {
			a.metrics.ObservationsDropped.Inc()
		}
		return err
	}
	obs.Sequence = seq

	if a.metrics != nil {
		a.metrics.ObservationsIngested.Inc()
	}
	if a.eventBridge != nil {
		a.eventBridge.Publish(*obs)
	}
	return nil
}

// applyTokens dispatches to the right DataItem.Apply* method based on the
// DataItem's representation.
func (a *Agent) applyTokens(di *DataItem, tokens []string, ts time.Time) (*schema.Observation, error) {
	switch {
	case di.Config.Category == schema.CategoryCondition:
		cv := ParseConditionTokens(tokens)
		return di.ApplyCondition(cv, ts), nil
	case di.Config.Representation == schema.RepresentationTimeSeries:
		samples, rate, err := ParseTimeSeriesTokens(tokens)
		if err != nil {
			return nil, err
		}
		return di.ApplyTimeSeries(samples, rate, ts), nil
	case di.Config.Representation == schema.RepresentationDataSet:
		if len(tokens) == 0 {
			return nil, newError(ErrProtocolError, "data set requires a value token")
		}
		return di.ApplyDataSet(ParseDataSetTokens(tokens[0]), ts), nil
	default:
		if len(tokens) == 0 {
			return nil, newError(ErrProtocolError, "value requires a token")
		}
		return di.Apply(tokens[0], ts)
	}
}

// Reset clears a DataItem's dedup state, e.g. for an HTTP PUT or an
// adapter's own reset command.
func (a *Agent) Reset(dataItemID, trigger string) error {
	a.mu.RLock()
	di, ok := a.dataItems[dataItemID]
	a.mu.RUnlock()
	if !ok {
		return newError(ErrUnknownDataItem, "unknown data item %q", dataItemID)
	}
	di.Reset(trigger)
	return nil
}

// StartAdapters builds and launches one AdapterClient per configured
// adapter, each running its own reconnect loop on its own goroutine until
// ctx is cancelled or StopAdapters is called.
func (a *Agent) StartAdapters(ctx context.Context, adapterCfgs []schema.AdapterConfig) error {
	for _, ac := range adapterCfgs {
		primary, err := a.Device(ac.DeviceName)
		if err != nil {
			return err
		}
		devices := []*Device{primary}
		for _, name := range ac.AdditionalDevices {
			dev, err := a.Device(name)
			if err != nil {
				return err
			}
			devices = append(devices, dev)
		}

		client := NewAdapterClient(a, ac, devices, a.cfg.ReconnectInterval, a.cfg.LegacyTimeout)
		a.mu.Lock()
		a.adapters = append(a.adapters, client)
		a.mu.Unlock()
		for _, dev := range devices {
			dev.AddAdapter(&AdapterMetadata{Host: ac.Host, Port: ac.Port})
		}
		go client.Run(ctx)
	}
	return nil
}

// StopAdapters signals every adapter client to stop and waits for its
// goroutine to join.
func (a *Agent) StopAdapters() {
	a.mu.RLock()
	clients := append([]*AdapterClient(nil), a.adapters...)
	a.mu.RUnlock()
	for _, c := range clients {
		c.Stop()
	}
	for _, c := range clients {
		<-c.Stopped()
	}
}

// --- Assets ---

func (a *Agent) Asset(id string) (schema.Asset, error) {
	asset, ok := a.assets.Get(id)
	if !ok {
		return schema.Asset{}, newError(ErrUnknownAsset, "unknown asset %q", id)
	}
	return asset, nil
}

func (a *Agent) Assets(assetType, deviceUUID string, count int) []schema.Asset {
	return a.assets.List(assetType, deviceUUID, count)
}

// PutAsset stores an asset and drives the per-device AssetChanged DataItem.
func (a *Agent) PutAsset(asset schema.Asset) {
	a.assets.Put(asset)
	a.touchAssetDataItem(asset.DeviceUUID, asset.Type, "AssetChanged")
}

// RemoveAsset implements explicit removal (distinct from LRU eviction) and
// drives AssetRemoved.
func (a *Agent) RemoveAsset(id string) error {
	asset, ok := a.assets.Get(id)
	if !ok {
		return newError(ErrUnknownAsset, "unknown asset %q", id)
	}
	a.assets.Remove(id)
	a.touchAssetDataItem(asset.DeviceUUID, asset.Type, "AssetRemoved")
	return nil
}

// onAssetRemoved is the lrucache eviction callback wired in New(): it fires
// with the store's own mutex no longer held (Cache.evictOverflow calls it from
// inside Cache's lock, but that lock guards only the cache, not the agent),
// so it is safe to touch the buffer/device indices here.
func (a *Agent) onAssetRemoved(_, assetType string) {
	a.touchAssetDataItem("", assetType, "AssetRemoved")
}

// touchAssetDataItem emits an observation on every matching device's
// AssetChanged/AssetRemoved synthetic DataItem, carrying the asset
// type as its value. An empty deviceUUID matches every device; LRU
// eviction passes an empty one, since the AssetStore's OnRemoved callback
// receives only the evicted asset's id and type.
func (a *Agent) touchAssetDataItem(deviceUUID, assetType, which string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, dev := range a.devices {
		if deviceUUID != "" && dev.UUID() != deviceUUID {
			continue
		}
		di := dev.AssetChanged
		if which == "AssetRemoved" {
			di = dev.AssetRemoved
		}
		if di == nil {
			continue
		}
		rt := a.dataItems[di.ID]
		if rt == nil {
			continue
		}
		obs, err := rt.Apply(assetType, time.Now())
		if err != nil || obs == nil {
			continue
		}
		if seq, err := a.buffer.Push(*obs); err == nil {
			obs.Sequence = seq
		}
	}
}
