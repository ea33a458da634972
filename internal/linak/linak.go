// Package linak implements the GATT protocol of Linak-based sit-stand desk
// controllers (IKEA Idasen and compatible). It is the single source of truth
// for characteristic UUIDs, raw move opcodes, and the conversion between
// wire frames and physical units.
package linak

// GATT UUIDs of the Linak desk controller. The device must already be paired
// at the OS level; pairing is not handled here.
const (
	// HeightServiceUUID contains the combined height/speed characteristic.
	HeightServiceUUID = "99fa0020-338a-1024-8a49-009c0215f78a"
	// HeightCharUUID notifies (and reads) the current position and speed.
	HeightCharUUID = "99fa0021-338a-1024-8a49-009c0215f78a"

	// ControlServiceUUID contains the raw command characteristic.
	ControlServiceUUID = "99fa0001-338a-1024-8a49-009c0215f78a"
	// CommandCharUUID accepts the raw move opcodes (up/down/stop).
	CommandCharUUID = "99fa0002-338a-1024-8a49-009c0215f78a"

	// ReferenceInputServiceUUID contains the reference input characteristic.
	ReferenceInputServiceUUID = "99fa0030-338a-1024-8a49-009c0215f78a"
	// ReferenceInputCharUUID accepts encoded target positions and the
	// reference-input stop frame.
	ReferenceInputCharUUID = "99fa0031-338a-1024-8a49-009c0215f78a"

	// DPGCharUUID is the controller's DPG channel. Unused by this driver,
	// listed for completeness.
	DPGCharUUID = "99fa0011-338a-1024-8a49-009c0215f78a"
)

// Raw move opcodes for CommandCharUUID. Fixed byte sequences, no parameters.
var (
	CommandUp   = []byte{0x47, 0x00}
	CommandDown = []byte{0x46, 0x00}
	CommandStop = []byte{0xFF, 0x00}

	// ReferenceInputStop halts a reference-input driven move. The controller
	// expects it on ReferenceInputCharUUID alongside CommandStop.
	ReferenceInputStop = []byte{0x01, 0x80}
)
