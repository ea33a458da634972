package desk

import "context"

// Transport establishes links to a paired desk controller. The production
// implementation wraps go-ble; tests substitute an in-memory fake. Scanning
// and pairing are out of scope - the device is expected to be paired by the
// host OS before the driver runs.
type Transport interface {
	// Connect establishes a link to the device with the given address.
	Connect(ctx context.Context, address string) (Conn, error)
}

// Conn is a live link to the desk controller. A Conn is invalid after Close
// or after the disconnect callback fires; operations against a stale Conn
// fail.
type Conn interface {
	// Write writes payload to the characteristic with the given UUID and
	// waits for the link-layer acknowledgement.
	Write(uuid string, payload []byte) error

	// Read reads the current value of the characteristic.
	Read(uuid string) ([]byte, error)

	// Subscribe registers fn for notifications on the characteristic. fn is
	// invoked from the transport's notification goroutine; it must not block.
	Subscribe(uuid string, fn func(payload []byte)) error

	// OnDisconnect registers cb, invoked once if the link drops
	// unexpectedly. Not invoked on explicit Close.
	OnDisconnect(cb func())

	// Close releases the link. Idempotent.
	Close() error
}
