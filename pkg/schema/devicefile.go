package schema

import (
	"bytes"
	"encoding/json"
	"io"
)

// LoadDeviceConfig decodes a device model file into a DeviceConfig tree.
// Parsing the file format itself (here, plain JSON mirroring the struct
// layout rather than the MTConnect XML device model) is the external
// collaborator's job per the core's scope; this is the minimal reader the
// cmd entrypoint needs to hand a *DeviceConfig to agent.New.
func LoadDeviceConfig(r io.Reader) (*DeviceConfig, error) {
	var dc DeviceConfig
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dc); err != nil {
		return nil, err
	}
	return &dc, nil
}

// LoadProgramConfig decodes and validates an agent configuration file
// against the embedded JSON schema before unmarshalling it, mirroring the
// teacher's two-step config loading (raw validate, then decode) in
// cmd/cc-backend/main.go.
func LoadProgramConfig(data []byte) (*ProgramConfig, error) {
	if err := Validate(Config, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	var pc ProgramConfig
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, err
	}
	return &pc, nil
}
