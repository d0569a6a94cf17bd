package agent

import (
	"testing"

	"github.com/mtconnect-go/agent/pkg/schema"
)

func sampleDeviceConfig() *schema.DeviceConfig {
	return &schema.DeviceConfig{
		ComponentConfig: schema.ComponentConfig{
			ID:   "dev1",
			Name: "Mill",
			UUID: "uuid-1",
			DataItems: []*schema.DataItemConfig{
				{ID: "avail", Type: "AVAILABILITY", Category: schema.CategoryEvent},
			},
			Children: []*schema.ComponentConfig{
				{
					ID: "axis1",
					DataItems: []*schema.DataItemConfig{
						{ID: "x_pos", Name: "Xact", Source: "xpos", Category: schema.CategorySample},
					},
				},
			},
		},
	}
}

func TestNewDeviceIndexesByIDNameSource(t *testing.T) {
	dev, err := NewDevice(sampleDeviceConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := dev.ByID("x_pos"); !ok {
		t.Error("expected lookup by id to succeed")
	}
	if _, ok := dev.ByName("Xact"); !ok {
		t.Error("expected lookup by name to succeed")
	}
	if _, ok := dev.BySource("xpos"); !ok {
		t.Error("expected lookup by source to succeed")
	}
	if len(dev.AllDataItems()) != 2 {
		t.Errorf("expected 2 data items, got %d", len(dev.AllDataItems()))
	}
	if dev.Availability == nil || dev.Availability.ID != "avail" {
		t.Error("expected AVAILABILITY data item to be detected")
	}
}

func TestNewDeviceDuplicateIDRejected(t *testing.T) {
	cfg := sampleDeviceConfig()
	cfg.Children[0].DataItems = append(cfg.Children[0].DataItems, &schema.DataItemConfig{ID: "x_pos", Name: "Dup"})

	if _, err := NewDevice(cfg); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
}

func TestNewDeviceDuplicateSourceRejected(t *testing.T) {
	cfg := sampleDeviceConfig()
	cfg.Children[0].DataItems = append(cfg.Children[0].DataItems, &schema.DataItemConfig{ID: "x_pos2", Source: "xpos"})

	if _, err := NewDevice(cfg); err == nil {
		t.Error("expected duplicate effective source key to be rejected")
	}
}

func TestDeviceUUIDFallsBackToID(t *testing.T) {
	cfg := sampleDeviceConfig()
	cfg.UUID = ""
	dev, err := NewDevice(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if dev.UUID() != "dev1" {
		t.Errorf("expected uuid fallback to id, got %q", dev.UUID())
	}
}
