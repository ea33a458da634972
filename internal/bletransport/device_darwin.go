//go:build darwin

package bletransport

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory creates the CoreBluetooth device. A variable so tests can
// substitute a mock.
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}
