//go:build linux

package bletransport

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// DeviceFactory creates the HCI socket device. A variable so tests can
// substitute a mock.
var DeviceFactory = func() (ble.Device, error) {
	return linux.NewDevice()
}
