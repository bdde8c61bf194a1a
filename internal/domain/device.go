package domain

import "fmt"

// DeviceKind is a publishable local track source.
type DeviceKind string

const (
	DeviceMicrophone  DeviceKind = "microphone"
	DeviceCamera      DeviceKind = "camera"
	DeviceScreenShare DeviceKind = "screen_share"
)

var DeviceKinds = []DeviceKind{DeviceMicrophone, DeviceCamera, DeviceScreenShare}

func ParseDeviceKind(s string) (DeviceKind, error) {
	switch k := DeviceKind(s); k {
	case DeviceMicrophone, DeviceCamera, DeviceScreenShare:
		return k, nil
	}
	return "", fmt.Errorf("unknown device kind %q", s)
}

// DeviceToggle is the per-kind control state.
type DeviceToggle struct {
	Enabled bool `json:"enabled"`
	Pending bool `json:"pending"`
}
