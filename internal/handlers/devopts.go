// Package handlers implements the JSON device-options parsing shared by
// DEV_OPTS, DEVICE_ADD, and DEVICE_DEL: stripping the transport's
// reserved keys before a factory ever sees the options map.
package handlers

import "encoding/json"

// reservedKeys are transport-level keys the proxy includes in every
// device-options blob; device factories never see them.
var reservedKeys = map[string]struct{}{
	"rid":           {},
	"socket":        {},
	"remote":        {},
	"command":       {},
	"exec":          {},
	"remote-device": {},
	"bus":           {},
	"addr":          {},
}

// ParseDeviceOptions parses a DEV_OPTS/DEVICE_ADD JSON payload and
// strips the reserved transport keys, returning the driver name (the
// "driver" key) and the remaining options map.
func ParseDeviceOptions(data []byte) (driver string, opts map[string]any, err error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", nil, err
	}
	if d, ok := raw["driver"].(string); ok {
		driver = d
	}
	opts = make(map[string]any, len(raw))
	for k, v := range raw {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		opts[k] = v
	}
	return driver, opts, nil
}

// DeviceID is the JSON shape of a DEVICE_DEL payload.
type DeviceID struct {
	ID string `json:"id"`
}

// ParseDeviceID parses a DEVICE_DEL JSON payload.
func ParseDeviceID(data []byte) (DeviceID, error) {
	var d DeviceID
	err := json.Unmarshal(data, &d)
	return d, err
}

// DeviceName returns the options map's own "id" field, the proxy-chosen
// name DEVICE_DEL later references (distinct from the transport's
// integer device id on the wire).
func DeviceName(opts map[string]any) (string, bool) {
	name, ok := opts["id"].(string)
	return name, ok
}
