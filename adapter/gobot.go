package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/accelmon"
	"gobot.io/x/gobot/v2/drivers/i2c"
)

var _ accelmon.RegisterIO = &GobotBus{}

// GobotBus adapts a gobot board adaptor into a device-bound register
// transport. Useful on boards where gobot already carries the platform
// plumbing (nanopi, raspi, ...). Unlike the native i2c handle, the
// write-then-read turns into two transactions on the wire.
type GobotBus struct {
	mx       sync.Mutex
	driver   *i2c.GenericDriver
	addr     byte
	released bool
}

// NewGobotBus binds the device at addr on the given bus of the adaptor.
func NewGobotBus(conn i2c.Connector, addr byte, bus int) (*GobotBus, error) {
	driver := i2c.NewGenericDriver(conn, "accelmon", int(addr), func(c i2c.Config) {
		c.SetBus(bus)
	})
	if err := driver.Start(); err != nil {
		return nil, fmt.Errorf("gobot driver start error: %w", err)
	}
	return &GobotBus{driver: driver, addr: addr}, nil
}

func (b *GobotBus) Write(ctx context.Context, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.released {
		return fmt.Errorf("write to %#x: %w", b.addr, accelmon.ErrBusReleased)
	}
	if err := b.driver.Write(buffer); err != nil {
		return fmt.Errorf("write to %#x failed: %w", b.addr, err)
	}
	return nil
}

func (b *GobotBus) WriteThenRead(ctx context.Context, w, r []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.released {
		return fmt.Errorf("read from %#x: %w", b.addr, accelmon.ErrBusReleased)
	}
	if err := b.driver.Write(w); err != nil {
		return fmt.Errorf("write to %#x failed: %w", b.addr, err)
	}
	if err := b.driver.Read(r); err != nil {
		return fmt.Errorf("read from %#x failed: %w", b.addr, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.released {
		return nil
	}
	b.released = true
	if err := b.driver.Halt(); err != nil {
		return fmt.Errorf("gobot driver halt error: %w", err)
	}
	return nil
}
