package agent

import (
	"testing"
	"time"

	"github.com/mtconnect-go/agent/pkg/schema"
)

func TestAssetStorePutGet(t *testing.T) {
	s := NewAssetStore(10)
	s.Put(schema.Asset{AssetID: "A1", Type: "CuttingTool", DeviceUUID: "dev1", Timestamp: time.Now()})

	a, ok := s.Get("A1")
	if !ok {
		t.Fatal("expected asset to be found")
	}
	if a.Type != "CuttingTool" {
		t.Errorf("expected type CuttingTool, got %q", a.Type)
	}
}

func TestAssetStoreListFilteredByTypeAndDevice(t *testing.T) {
	s := NewAssetStore(10)
	s.Put(schema.Asset{AssetID: "A1", Type: "CuttingTool", DeviceUUID: "dev1"})
	s.Put(schema.Asset{AssetID: "A2", Type: "CuttingTool", DeviceUUID: "dev2"})
	s.Put(schema.Asset{AssetID: "A3", Type: "Other", DeviceUUID: "dev1"})

	byType := s.List("CuttingTool", "", 0)
	if len(byType) != 2 {
		t.Errorf("expected 2 CuttingTool assets, got %d", len(byType))
	}

	byDevice := s.List("", "dev1", 0)
	if len(byDevice) != 2 {
		t.Errorf("expected 2 assets for dev1, got %d", len(byDevice))
	}

	both := s.List("CuttingTool", "dev1", 0)
	if len(both) != 1 || both[0].AssetID != "A1" {
		t.Errorf("expected only A1, got %+v", both)
	}
}

func TestAssetStoreListMostRecentlyUsedOrder(t *testing.T) {
	s := NewAssetStore(10)
	s.Put(schema.Asset{AssetID: "A1", Type: "T"})
	s.Put(schema.Asset{AssetID: "A2", Type: "T"})
	s.Put(schema.Asset{AssetID: "A3", Type: "T"})

	list := s.List("", "", 0)
	if len(list) != 3 || list[0].AssetID != "A3" || list[2].AssetID != "A1" {
		t.Errorf("expected most-recently-used first, got %+v", list)
	}
}

func TestAssetStoreEvictionInvokesOnRemoved(t *testing.T) {
	s := NewAssetStore(2)
	var removed []string
	s.OnRemoved(func(id, assetType string) { removed = append(removed, id) })

	s.Put(schema.Asset{AssetID: "A1", Type: "T"})
	s.Put(schema.Asset{AssetID: "A2", Type: "T"})
	s.Put(schema.Asset{AssetID: "A3", Type: "T"})

	if s.Len() != 2 {
		t.Errorf("expected store capped at capacity 2, got %d", s.Len())
	}
	if len(removed) != 1 || removed[0] != "A1" {
		t.Errorf("expected A1 (least recently used) evicted, got %v", removed)
	}
	if _, ok := s.Get("A1"); ok {
		t.Error("expected A1 to no longer be retrievable")
	}
}

func TestAssetStoreRemoveDoesNotInvokeOnRemoved(t *testing.T) {
	s := NewAssetStore(10)
	var removed int
	s.OnRemoved(func(id, assetType string) { removed++ })

	s.Put(schema.Asset{AssetID: "A1", Type: "T"})
	if !s.Remove("A1") {
		t.Fatal("expected removal to succeed")
	}
	if removed != 0 {
		t.Error("explicit Remove should not invoke the eviction callback")
	}
	if _, ok := s.Get("A1"); ok {
		t.Error("expected A1 removed")
	}
}
