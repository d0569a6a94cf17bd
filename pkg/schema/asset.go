package schema

import "time"

// Asset is an opaque, bounded-LRU document attached to a device, e.g. a
// CuttingTool definition. Body is kept as the raw text handed to PutAsset;
// XML/entity interpretation is left to the serializer collaborator.
type Asset struct {
	AssetID    string
	Type       string
	DeviceUUID string
	Timestamp  time.Time
	Removed    bool
	Body       string
}
