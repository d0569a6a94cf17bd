package schema

// AdapterConfig is the per-adapter configuration consumed by the SHDR
// client (C9) and the Device model (C3) at startup.
type AdapterConfig struct {
	Host              string   `json:"host"`
	Port              int      `json:"port"`
	DeviceName        string   `json:"deviceName"`
	AdditionalDevices []string `json:"additionalDevices"`
	AutoAvailable     bool     `json:"autoAvailable"`
	RelativeTime      bool     `json:"relativeTime"`
}

// ProgramConfig is the format of the agent's configuration file. See
// internal/agent.DefaultConfig for the default values.
type ProgramConfig struct {
	// BufferSize is the capacity (N) of the circular observation buffer.
	BufferSize int `json:"bufferSize"`

	// MaxAssets is the capacity (M) of the asset store.
	MaxAssets int `json:"maxAssets"`

	// CheckpointFrequency is the stride (K) between periodic checkpoints.
	// If zero, defaults to BufferSize/16.
	CheckpointFrequency int `json:"checkpointFrequency"`

	// ReconnectInterval, a string parsable by time.ParseDuration.
	ReconnectInterval string `json:"reconnectInterval"`

	// LegacyTimeout, a string parsable by time.ParseDuration. An adapter
	// not heard from within this window is considered disconnected even
	// absent a socket error.
	LegacyTimeout string `json:"legacyTimeout"`

	IgnoreTimestamps    bool `json:"ignoreTimestamps"`
	ConversionRequired  bool `json:"conversionRequired"`
	UpcaseDataItemValue bool `json:"upcaseDataItemValue"`
	FilterDuplicates    bool `json:"filterDuplicates"`

	// MaxSampleCount bounds the `count` parameter accepted by sample/stream.
	MaxSampleCount int `json:"maxSampleCount"`

	// DeviceModelFile points at the external device configuration file;
	// parsing it is out of scope for the core and handled by a
	// collaborator the cmd entrypoint wires in.
	DeviceModelFile string `json:"deviceModelFile"`

	// MetricsAddr, if non-empty, is the address the Prometheus metrics
	// handler listens on.
	MetricsAddr string `json:"metricsAddr"`

	// EventBridgeURL, if non-empty, is a NATS server URL observations are
	// best-effort mirrored to.
	EventBridgeURL string `json:"eventBridgeURL"`

	Adapters []AdapterConfig `json:"adapters"`
}
