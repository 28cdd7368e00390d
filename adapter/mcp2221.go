package adapter

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"github.com/mklimuk/accelmon"
)

// MCP2221 USB identifiers
const VendorID = 0x04D8
const ProductID = 0x00DD

// HID command set (I2C subset)
const (
	cmdStatusSet = 0x10
	cmdGetData   = 0x40
	cmdWriteData = 0x90
	cmdReadData  = 0x91
)

// cancelTransfer is the 0x10 sub-command flag that frees the I2C engine.
const cancelTransfer = 0x10

var ErrAdapterNotFound = errors.New("MCP2221 adapter not found")

var _ accelmon.RegisterIO = &MCP2221{}

// MCP2221 drives a single I2C device through the Microchip MCP2221 USB
// bridge. The HID endpoint is opened once at construction and owned
// exclusively until Release.
type MCP2221 struct {
	mx           sync.Mutex
	dev          *hid.Device
	addr         byte
	request      []byte
	response     []byte
	responseWait time.Duration
	released     bool
}

// NewMCP2221 enumerates the bridge and binds it to the I2C device at addr.
func NewMCP2221(addr byte) (*MCP2221, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrAdapterNotFound
	}
	if len(devs) > 1 {
		return nil, fmt.Errorf("ambiguous adapter identification: %d bridges present", len(devs))
	}
	dev, err := devs[0].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening adapter: %w", err)
	}
	return &MCP2221{
		dev:          dev,
		addr:         addr,
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
	}, nil
}

func (d *MCP2221) Write(ctx context.Context, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.write(ctx, buffer)
}

func (d *MCP2221) WriteThenRead(ctx context.Context, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write(ctx, w); err != nil {
		return err
	}
	return d.read(ctx, r)
}

// Release cancels any pending transfer and closes the HID endpoint.
// Idempotent; the adapter is unusable afterwards.
func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	d.resetBuffers()
	d.request[0] = cmdStatusSet
	d.request[2] = cancelTransfer
	if err := d.send(ctx); err != nil {
		_ = d.dev.Close()
		return fmt.Errorf("could not release i2c engine: %w", err)
	}
	if err := d.dev.Close(); err != nil {
		return fmt.Errorf("error closing adapter: %w", err)
	}
	return nil
}

func (d *MCP2221) write(ctx context.Context, buffer []byte) error {
	if d.released {
		return fmt.Errorf("write to %#x: %w", d.addr, accelmon.ErrBusReleased)
	}
	d.resetBuffers()
	d.request[0] = cmdWriteData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = d.addr << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("write to %#x failed: %w", d.addr, err)
	}
	if d.response[1] == 0x01 {
		return accelmon.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, buffer []byte) error {
	if d.released {
		return fmt.Errorf("read from %#x: %w", d.addr, accelmon.ErrBusReleased)
	}
	d.resetBuffers()
	d.request[0] = cmdReadData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = d.addr<<1 + 1
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("bus read from %#x failed: %w", d.addr, err)
	}
	d.request[0] = cmdGetData
	resetBuffer(d.response)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	// a short read is a failure, never a partial fill
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) send(ctx context.Context) error {
	n, err := d.dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	timer := time.NewTimer(d.responseWait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	n, err = d.dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
