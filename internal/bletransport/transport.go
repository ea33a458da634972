// Package bletransport implements the desk transport on top of go-ble:
// dialing, profile discovery, characteristic lookup, notifications and the
// disconnect watch. Everything above it speaks characteristic UUIDs and raw
// payloads only.
package bletransport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/deskctl/internal/desk"
	"github.com/srg/deskctl/internal/linak"
)

// Transport dials BLE desks. Implements desk.Transport.
type Transport struct {
	logger *logrus.Logger
}

// New creates a transport. logger may be nil.
func New(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

// Connect dials the device, discovers its GATT profile and verifies the
// Linak height service is present. The returned conn owns the link.
func (t *Transport) Connect(ctx context.Context, address string) (desk.Conn, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	// Create the HCI device via the factory (allows mocking in tests).
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	t.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, err)
	}

	t.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			t.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	chars := make(map[string]*ble.Characteristic)
	for _, svc := range profile.Services {
		for _, char := range svc.Characteristics {
			chars[normalizeUUID(char.UUID.String())] = char
		}
	}

	if _, ok := chars[normalizeUUID(linak.HeightCharUUID)]; !ok {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			t.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection")
		}
		return nil, fmt.Errorf("height characteristic %s not found: not a Linak desk?", linak.HeightCharUUID)
	}

	c := &conn{
		client: client,
		chars:  chars,
		logger: t.logger,
	}
	c.watchDisconnect()

	t.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(profile.Services),
		"characteristics": len(chars),
	}).Info("BLE device connected successfully")
	return c, nil
}

// conn is one live BLE link. Implements desk.Conn.
type conn struct {
	client ble.Client
	chars  map[string]*ble.Characteristic
	logger *logrus.Logger

	writeMu sync.Mutex

	mu           sync.Mutex
	onDisconnect func()
	linkDown     bool

	closeOnce sync.Once
	closeErr  error
}

func (c *conn) Write(uuid string, payload []byte) error {
	char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.client.WriteCharacteristic(char, payload, false); err != nil {
		return fmt.Errorf("failed to write to characteristic %s: %w", uuid, err)
	}
	c.logger.WithFields(logrus.Fields{
		"uuid":  uuid,
		"bytes": len(payload),
	}).Debug("Wrote to characteristic")
	return nil
}

func (c *conn) Read(uuid string) ([]byte, error) {
	char, err := c.characteristic(uuid)
	if err != nil {
		return nil, err
	}
	data, err := c.client.ReadCharacteristic(char)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", uuid, err)
	}
	return data, nil
}

func (c *conn) Subscribe(uuid string, fn func(payload []byte)) error {
	char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}
	if err := c.client.Subscribe(char, false, fn); err != nil {
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", uuid, err)
	}
	return nil
}

// OnDisconnect registers the link-loss callback. If the link already went
// down before registration the callback fires immediately.
func (c *conn) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.onDisconnect = cb
	down := c.linkDown
	c.mu.Unlock()

	if down && cb != nil {
		cb()
	}
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.client.CancelConnection()
	})
	return c.closeErr
}

func (c *conn) characteristic(uuid string) (*ble.Characteristic, error) {
	char, ok := c.chars[normalizeUUID(uuid)]
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found", uuid)
	}
	return char, nil
}

// watchDisconnect monitors the client's disconnect channel and surfaces
// link loss to the session.
func (c *conn) watchDisconnect() {
	watcher, ok := c.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		c.logger.Debug("Client does not expose a Disconnected() channel")
		return
	}
	go func() {
		<-watcher.Disconnected()
		c.logger.Warn("BLE stack reported disconnection")

		c.mu.Lock()
		c.linkDown = true
		cb := c.onDisconnect
		c.mu.Unlock()

		if cb != nil {
			cb()
		}
	}()
}

// normalizeUUID strips dashes and lowercases so dashed constants compare
// equal to go-ble's compact form.
func normalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}
