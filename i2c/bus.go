package i2c

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mklimuk/accelmon"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// FastMode is the default bus speed for acquired handles.
const FastMode = 400 * physic.KiloHertz

// Discover returns the name of the first I2C bus controller registered on the
// platform. An empty registry is a startup failure for the whole acquisition
// subsystem and is reported as a DiscoveryError.
func Discover() (string, error) {
	if _, err := host.Init(); err != nil {
		return "", fmt.Errorf("could not init host: %w", err)
	}
	refs := i2creg.All()
	if len(refs) == 0 {
		return "", &DiscoveryError{}
	}
	return refs[0].Name, nil
}

// Controllers lists every registered bus controller by name.
func Controllers() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	refs := i2creg.All()
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	return names, nil
}

type Opts struct {
	Speed physic.Frequency
	Probe bool
}

type Opt func(*Opts)

func WithSpeed(speed physic.Frequency) Opt {
	return func(o *Opts) {
		o.Speed = speed
	}
}

// WithoutProbe skips the acquisition-time read used to verify that the device
// answers at its address.
func WithoutProbe() Opt {
	return func(o *Opts) {
		o.Probe = false
	}
}

// devTx is the slice of periph's i2c.Dev the handle needs.
type devTx interface {
	Tx(w, r []byte) error
}

var _ accelmon.RegisterIO = &BusHandle{}

// BusHandle is an exclusively owned endpoint on a single {controller, address}
// pair. It is invalid after Release: further operations fail with
// accelmon.ErrBusReleased instead of touching the bus.
type BusHandle struct {
	mx         sync.Mutex
	dev        devTx
	closer     io.Closer
	controller string
	addr       uint16
	released   bool
}

// Acquire opens the named controller and binds it to the device at addr.
// A device that is already claimed, or that does not answer the acquisition
// probe, yields an AcquisitionError carrying both the address and the
// controller id.
func Acquire(controller string, addr uint16, opts ...Opt) (*BusHandle, error) {
	config := Opts{
		Speed: FastMode,
		Probe: true,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	bus, err := i2creg.Open(controller)
	if err != nil {
		return nil, &AcquisitionError{Controller: controller, Addr: addr, Err: err}
	}
	if config.Speed != 0 {
		if err = bus.SetSpeed(config.Speed); err != nil {
			_ = bus.Close()
			return nil, &AcquisitionError{Controller: controller, Addr: addr, Err: err}
		}
	}
	h := &BusHandle{
		dev:        &i2c.Dev{Bus: bus, Addr: addr},
		closer:     bus,
		controller: controller,
		addr:       addr,
	}
	if config.Probe {
		if err = h.dev.Tx(nil, make([]byte, 1)); err != nil {
			_ = bus.Close()
			return nil, &AcquisitionError{Controller: controller, Addr: addr, Err: err}
		}
	}
	return h, nil
}

// Controller returns the id of the bus controller backing the handle.
func (h *BusHandle) Controller() string {
	return h.controller
}

// Addr returns the slave address the handle is bound to.
func (h *BusHandle) Addr() uint16 {
	return h.addr
}

func (h *BusHandle) Write(ctx context.Context, buffer []byte) error {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.released {
		return fmt.Errorf("write to %#x on %s: %w", h.addr, h.controller, accelmon.ErrBusReleased)
	}
	if err := h.dev.Tx(buffer, nil); err != nil {
		return fmt.Errorf("could not write to %#x on %s: %w", h.addr, h.controller, err)
	}
	return nil
}

func (h *BusHandle) WriteThenRead(ctx context.Context, w, r []byte) error {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.released {
		return fmt.Errorf("read from %#x on %s: %w", h.addr, h.controller, accelmon.ErrBusReleased)
	}
	if err := h.dev.Tx(w, r); err != nil {
		return fmt.Errorf("could not read from %#x on %s: %w", h.addr, h.controller, err)
	}
	return nil
}

// Release closes the underlying controller. Idempotent.
func (h *BusHandle) Release(ctx context.Context) error {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	if err := h.closer.Close(); err != nil {
		return fmt.Errorf("could not close i2c bus %s: %w", h.controller, err)
	}
	return nil
}
