package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/notargets/gocca"
)

// EnvDevice selects the backend by mode name: Serial, OpenMP or CUDA
const EnvDevice = "MLNODE_DEVICE"

var backends = map[string]string{
	"openmp": `{"mode": "OpenMP"}`,
	"cuda":   `{"mode": "CUDA", "device_id": 0}`,
	"serial": `{"mode": "Serial"}`,
}

// CreateDevice creates a device for the named mode
func CreateDevice(mode string) (*gocca.OCCADevice, error) {
	props, ok := backends[strings.ToLower(mode)]
	if !ok {
		return nil, fmt.Errorf("unknown device mode %q", mode)
	}
	device, err := gocca.NewDevice(props)
	if err != nil {
		return nil, fmt.Errorf("creating %s device: %w", mode, err)
	}
	return device, nil
}

// CreateTestDevice creates a Device for testing, preferring parallel backends.
// MLNODE_DEVICE pins the mode.
func CreateTestDevice() *gocca.OCCADevice {
	order := []string{"openmp", "cuda", "serial"}
	if mode := os.Getenv(EnvDevice); mode != "" {
		order = []string{mode}
	}

	for _, mode := range order {
		device, err := CreateDevice(mode)
		if err == nil {
			fmt.Printf("Created %s Device\n", device.Mode())
			return device
		}
	}

	panic(fmt.Sprintf("Failed to create any Device from %v", order))
}
