package agent

import (
	"github.com/mtconnect-go/agent/pkg/schema"
	"github.com/mtconnect-go/agent/pkg/units"
)

// Device is the built, indexed form of a schema.DeviceConfig: the tree is
// immutable once constructed, so unlike the teacher's Level tree (built
// lazily, concurrently, under double-checked locking as new selectors
// arrive at runtime) the id/name/source indices are built once, eagerly,
// at NewDevice time and never touched again. Device holds no lock:
// AddAdapter and Adapters are not safe for concurrent use, and the
// adapter back-references are appended by Agent.StartAdapters.
type Device struct {
	Config *schema.DeviceConfig

	byID     map[string]*schema.DataItemConfig
	byName   map[string]*schema.DataItemConfig
	bySource map[string]*schema.DataItemConfig

	components map[string]*schema.ComponentConfig

	// Synthetic per-device DataItems surfaced by the agent itself rather
	// than by the device's own configuration: connection/asset-change
	// bookkeeping.
	Availability  *schema.DataItemConfig
	AssetChanged  *schema.DataItemConfig
	AssetRemoved  *schema.DataItemConfig

	adapters []*AdapterMetadata
}

// NewDevice builds the indexed Device from a parsed configuration. Two
// DataItems sharing an effective source key is a configuration error.
func NewDevice(cfg *schema.DeviceConfig) (*Device, error) {
	d := &Device{
		Config:     cfg,
		byID:       make(map[string]*schema.DataItemConfig),
		byName:     make(map[string]*schema.DataItemConfig),
		bySource:   make(map[string]*schema.DataItemConfig),
		components: make(map[string]*schema.ComponentConfig),
	}

	var walkErr error
	cfg.Walk(func(c *schema.ComponentConfig) {
		if walkErr != nil {
			return
		}
		if c.ID != "" {
			if _, dup := d.components[c.ID]; dup {
				walkErr = newError(ErrConfigError, "duplicate component id %q", c.ID)
				return
			}
			d.components[c.ID] = c
		}
		for _, di := range c.DataItems {
			if err := d.indexDataItem(di); err != nil {
				walkErr = err
				return
			}
			switch di.Type {
			case "AVAILABILITY":
				d.Availability = di
			case "ASSET_CHANGED":
				d.AssetChanged = di
			case "ASSET_REMOVED":
				d.AssetRemoved = di
			}
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return d, nil
}

func (d *Device) indexDataItem(di *schema.DataItemConfig) error {
	if di.ID == "" {
		return newError(ErrConfigError, "data item with empty id")
	}
	if di.NativeUnits != "" {
		di.Conversion = units.Parse(di.NativeUnits, di.Units, di.NativeScale)
	}
	if _, dup := d.byID[di.ID]; dup {
		return newError(ErrConfigError, "duplicate data item id %q", di.ID)
	}
	src := di.EffectiveSource()
	if _, dup := d.bySource[src]; dup {
		return newError(ErrConfigError, "duplicate effective source key %q (from data item %q)", src, di.ID)
	}

	d.byID[di.ID] = di
	if di.Name != "" {
		d.byName[di.Name] = di
	}
	d.bySource[src] = di
	return nil
}

// ByID, ByName, BySource are the O(1) lookups into the indices built by NewDevice.
func (d *Device) ByID(id string) (*schema.DataItemConfig, bool) {
	di, ok := d.byID[id]
	return di, ok
}

func (d *Device) ByName(name string) (*schema.DataItemConfig, bool) {
	di, ok := d.byName[name]
	return di, ok
}

func (d *Device) BySource(source string) (*schema.DataItemConfig, bool) {
	di, ok := d.bySource[source]
	return di, ok
}

func (d *Device) Component(id string) (*schema.ComponentConfig, bool) {
	c, ok := d.components[id]
	return c, ok
}

// AllDataItems returns every DataItem in the tree, for building the
// runtime DataItem state table at startup.
func (d *Device) AllDataItems() []*schema.DataItemConfig {
	out := make([]*schema.DataItemConfig, 0, len(d.byID))
	for _, di := range d.byID {
		out = append(out, di)
	}
	return out
}

// UUID returns the device's declared uuid, falling back to its id (the
// device configuration file may omit uuid for simple single-device setups).
func (d *Device) UUID() string {
	if d.Config.UUID != "" {
		return d.Config.UUID
	}
	return d.Config.ID
}

// Name returns the device's declared name, falling back to its id.
func (d *Device) Name() string {
	if d.Config.Name != "" {
		return d.Config.Name
	}
	return d.Config.ID
}

// AdapterMetadata is adapter identity/version info. An AdapterClient fills
// its own copy from the `* adapterVersion:`, `* mtconnectVersion:`, and
// `* calibration:` SHDR commands (see AdapterClient.Metadata); the entries
// a Device holds carry only the Host and Port set by Agent.StartAdapters
// and are not updated from those commands.
type AdapterMetadata struct {
	Host             string
	Port             int
	AdapterVersion   string
	MTConnectVersion string
	Calibration      string
}

// AddAdapter records the metadata of one of the adapter clients feeding
// this Device; it stores the given value, not a live view of the client.
func (d *Device) AddAdapter(meta *AdapterMetadata) {
	d.adapters = append(d.adapters, meta)
}

func (d *Device) Adapters() []*AdapterMetadata {
	return d.adapters
}
