package accel

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mklimuk/accelmon"
)

// Addr is the fixed 7-bit I2C address of the BMA250 accelerometer.
const Addr = 0x18

// Register map (per datasheet)
const (
	regAccX      byte = 0x02
	regAccY      byte = 0x04
	regAccZ      byte = 0x06
	regRange     byte = 0x0F
	regBandwidth byte = 0x10
)

// PMU_RANGE (0x0F) values
const (
	Range2G  byte = 0x03
	Range4G  byte = 0x05
	Range8G  byte = 0x08
	Range16G byte = 0x0C
)

// PMU_BW (0x10) values
const (
	Bandwidth7Hz81  byte = 0x08
	Bandwidth15Hz63 byte = 0x09
	Bandwidth31Hz25 byte = 0x0A
)

// Axis samples come back as little-endian 16-bit words with the signed 10-bit
// reading left-justified; dividing by the range divisor drops the padding
// bits. The divisor is keyed by range so a future packing change stays local
// to this table. Only ±2g is characterized today.
var rangeDivisor = map[byte]int{
	Range2G: 64,
}

// Acceleration is one decoded sample: the signed axis readings at the
// configured range. A fresh value is produced per sample.
type Acceleration struct {
	X int
	Y int
	Z int
}

func (a Acceleration) String() string {
	return fmt.Sprintf("x=%d y=%d z=%d", a.X, a.Y, a.Z)
}

type BMA250Opts struct {
	Range     byte
	Bandwidth byte
}

type BMA250Opt func(*BMA250Opts)

func WithRange(r byte) BMA250Opt {
	return func(o *BMA250Opts) {
		o.Range = r
	}
}

func WithBandwidth(bw byte) BMA250Opt {
	return func(o *BMA250Opts) {
		o.Bandwidth = bw
	}
}

// BMA250 represents Bosch BMA250 accelerometer. It owns its transport
// exclusively; all bus access is serialized on the driver mutex.
type BMA250 struct {
	mx        sync.Mutex
	config    BMA250Opts
	transport accelmon.RegisterIO
	divisor   int
	buf       []byte
}

func NewBMA250(transport accelmon.RegisterIO, opts ...BMA250Opt) *BMA250 {
	config := BMA250Opts{
		Range:     Range2G,
		Bandwidth: Bandwidth7Hz81,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &BMA250{
		config:    config,
		transport: transport,
		divisor:   rangeDivisor[Range2G],
		buf:       make([]byte, 6),
	}
}

// Configure writes the range register followed by the bandwidth register, in
// that order. If the range write fails the bandwidth write is not attempted.
func (b *BMA250) Configure(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	divisor, ok := rangeDivisor[b.config.Range]
	if !ok {
		return fmt.Errorf("bma250: no divisor for range %#x", b.config.Range)
	}
	err := b.writeReg(ctx, regRange, b.config.Range)
	if err != nil {
		return fmt.Errorf("bma250: range write failed: %w", err)
	}
	err = b.writeReg(ctx, regBandwidth, b.config.Bandwidth)
	if err != nil {
		return fmt.Errorf("bma250: bandwidth write failed: %w", err)
	}
	b.divisor = divisor
	return nil
}

// Sample reads all three axes and returns the decoded acceleration.
// The X, Y and Z data registers are consecutive and the device auto-increments
// its register pointer, so one 6-byte transaction covers the whole sample.
func (b *BMA250) Sample(ctx context.Context) (Acceleration, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	err := b.transport.WriteThenRead(ctx, []byte{regAccX}, b.buf)
	if err != nil {
		return Acceleration{}, fmt.Errorf("bma250: sample read failed: %w", err)
	}
	return decodeSample(b.buf, b.divisor), nil
}

// Release gives up the underlying bus handle.
func (b *BMA250) Release(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.transport.Release(ctx)
}

// writeReg sets a single register. Keeping the (register, value) pair in one
// place avoids transcription slips when more configuration registers show up.
func (b *BMA250) writeReg(ctx context.Context, reg, value byte) error {
	return b.transport.Write(ctx, []byte{reg, value})
}

// decodeSample converts a raw 6-byte register dump into axis values. Pure:
// same bytes and divisor always yield the same result. Go integer division
// truncates toward zero, which matches the device packing for negative
// readings as well.
func decodeSample(buf []byte, divisor int) Acceleration {
	return Acceleration{
		X: int(int16(binary.LittleEndian.Uint16(buf[0:2]))) / divisor,
		Y: int(int16(binary.LittleEndian.Uint16(buf[2:4]))) / divisor,
		Z: int(int16(binary.LittleEndian.Uint16(buf[4:6]))) / divisor,
	}
}
