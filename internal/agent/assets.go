package agent

import (
	"sync"
	"time"

	"github.com/mtconnect-go/agent/pkg/lrucache"
	"github.com/mtconnect-go/agent/pkg/schema"
)

// assetTTL is effectively "forever": the asset store's eviction policy is
// pure LRU-by-capacity, not time-based expiry, so every Put uses a TTL far
// longer than any agent uptime instead of teaching lrucache.Cache a second
// eviction mode it was never designed for.
const assetTTL = 100 * 365 * 24 * time.Hour

// AssetStore is a bounded LRU of assets, built on the teacher's
// pkg/lrucache.Cache (an intrusive doubly-linked LRU keyed by string, sized
// in caller-defined units) configured with per-entry size 1 and capacity M
// so "oldest past the Mth most-recently-used" is exactly LRU-by-count. It
// adds type/device_uuid secondary indices, maintained incrementally
// alongside the cache's own eviction.
type AssetStore struct {
	cache *lrucache.Cache

	mu       sync.Mutex
	byType   map[string]map[string]bool
	byDevice map[string]map[string]bool

	onRemoved func(id, assetType string)
}

// NewAssetStore builds a store with the given capacity.
func NewAssetStore(capacity int) *AssetStore {
	s := &AssetStore{
		cache:    lrucache.New(capacity),
		byType:   make(map[string]map[string]bool),
		byDevice: make(map[string]map[string]bool),
	}
	s.cache.OnEvict(func(key string, value interface{}) {
		a := value.(schema.Asset)
		s.unindexLocked(a)
		if s.onRemoved != nil {
			s.onRemoved(a.AssetID, a.Type)
		}
	})
	return s
}

// OnRemoved registers a callback invoked whenever an asset leaves the store
// via LRU eviction, used by the Agent facade to drive the AssetRemoved
// synthetic DataItem.
func (s *AssetStore) OnRemoved(f func(id, assetType string)) {
	s.onRemoved = f
}

// Put inserts or replaces an asset and moves it to the front of the LRU
// order. If the store is over capacity afterward, the LRU tail is evicted
// and OnRemoved fires for it.
func (s *AssetStore) Put(a schema.Asset) {
	s.mu.Lock()
	if prior, ok := s.priorLocked(a.AssetID); ok {
		s.unindexLocked(prior)
	}
	s.indexLocked(a)
	s.mu.Unlock()

	s.cache.Put(a.AssetID, a, 1, assetTTL)
}

func (s *AssetStore) priorLocked(id string) (schema.Asset, bool) {
	if v := s.cache.Get(id, nil); v != nil {
		return v.(schema.Asset), true
	}
	return schema.Asset{}, false
}

func (s *AssetStore) indexLocked(a schema.Asset) {
	if s.byType[a.Type] == nil {
		s.byType[a.Type] = make(map[string]bool)
	}
	s.byType[a.Type][a.AssetID] = true

	if a.DeviceUUID != "" {
		if s.byDevice[a.DeviceUUID] == nil {
			s.byDevice[a.DeviceUUID] = make(map[string]bool)
		}
		s.byDevice[a.DeviceUUID][a.AssetID] = true
	}
}

func (s *AssetStore) unindexLocked(a schema.Asset) {
	if m := s.byType[a.Type]; m != nil {
		delete(m, a.AssetID)
		if len(m) == 0 {
			delete(s.byType, a.Type)
		}
	}
	if m := s.byDevice[a.DeviceUUID]; m != nil {
		delete(m, a.AssetID)
		if len(m) == 0 {
			delete(s.byDevice, a.DeviceUUID)
		}
	}
}

// Get returns the asset for id, promoting it to most-recently-used.
func (s *AssetStore) Get(id string) (schema.Asset, bool) {
	v := s.cache.Get(id, nil)
	if v == nil {
		return schema.Asset{}, false
	}
	return v.(schema.Asset), true
}

// Remove deletes an asset outright, distinct from LRU eviction: this does
// not invoke OnRemoved, since the caller is expected to record the
// removal itself, e.g. via a "removed" tombstone asset per MTConnect's
// AssetRemoved document convention.
func (s *AssetStore) Remove(id string) bool {
	v := s.cache.Get(id, nil)
	if v == nil {
		return false
	}
	s.mu.Lock()
	s.unindexLocked(v.(schema.Asset))
	s.mu.Unlock()
	return s.cache.Del(id)
}

// List returns assets in most-recently-used order, optionally restricted
// to a type and/or device uuid.
func (s *AssetStore) List(assetType, deviceUUID string, count int) []schema.Asset {
	out := make([]schema.Asset, 0)
	s.cache.Walk(func(key string, val interface{}) {
		if count > 0 && len(out) >= count {
			return
		}
		a := val.(schema.Asset)
		if assetType != "" && a.Type != assetType {
			return
		}
		if deviceUUID != "" && a.DeviceUUID != deviceUUID {
			return
		}
		out = append(out, a)
	})
	return out
}

// Len reports the current number of stored assets, for the Prometheus
// gauge.
func (s *AssetStore) Len() int {
	return s.cache.Len()
}
