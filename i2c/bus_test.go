package i2c

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mklimuk/accelmon"
	"github.com/stretchr/testify/assert"
)

type fakeDev struct {
	writes [][]byte
	read   []byte
	err    error
}

func (f *fakeDev) Tx(w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	if len(w) > 0 {
		buf := make([]byte, len(w))
		copy(buf, w)
		f.writes = append(f.writes, buf)
	}
	copy(r, f.read)
	return nil
}

type fakeCloser struct {
	closed int
}

func (f *fakeCloser) Close() error {
	f.closed++
	return nil
}

func newTestHandle(dev *fakeDev, closer *fakeCloser) *BusHandle {
	return &BusHandle{dev: dev, closer: closer, controller: "/dev/i2c-1", addr: 0x18}
}

func TestBusHandle_WriteThenRead(t *testing.T) {
	dev := &fakeDev{read: []byte{0x01, 0x02, 0x03}}
	h := newTestHandle(dev, &fakeCloser{})

	buf := make([]byte, 3)
	err := h.WriteThenRead(context.Background(), []byte{0x02}, buf)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf)
	assert.Equal(t, [][]byte{{0x02}}, dev.writes)
}

func TestBusHandle_UseAfterRelease(t *testing.T) {
	dev := &fakeDev{}
	closer := &fakeCloser{}
	h := newTestHandle(dev, closer)
	ctx := context.Background()

	assert.NoError(t, h.Release(ctx))
	assert.Equal(t, 1, closer.closed)

	err := h.Write(ctx, []byte{0x0F, 0x03})
	assert.ErrorIs(t, err, accelmon.ErrBusReleased)
	err = h.WriteThenRead(ctx, []byte{0x02}, make([]byte, 6))
	assert.ErrorIs(t, err, accelmon.ErrBusReleased)
	assert.Empty(t, dev.writes, "no bus transaction after release")
}

func TestBusHandle_ReleaseIdempotent(t *testing.T) {
	closer := &fakeCloser{}
	h := newTestHandle(&fakeDev{}, closer)
	ctx := context.Background()

	assert.NoError(t, h.Release(ctx))
	assert.NoError(t, h.Release(ctx))
	assert.Equal(t, 1, closer.closed)
}

func TestBusHandle_TxErrorWrapped(t *testing.T) {
	cause := errors.New("remote I/O error")
	h := newTestHandle(&fakeDev{err: cause}, &fakeCloser{})

	err := h.WriteThenRead(context.Background(), []byte{0x02}, make([]byte, 6))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "0x18")
	assert.Contains(t, err.Error(), "/dev/i2c-1")
}

func TestAcquisitionError_Fields(t *testing.T) {
	cause := errors.New("device or resource busy")
	err := &AcquisitionError{Controller: "/dev/i2c-1", Addr: 0x18, Err: cause}

	assert.Contains(t, err.Error(), "0x18")
	assert.Contains(t, err.Error(), "/dev/i2c-1")
	assert.ErrorIs(t, err, cause)

	// the typed value survives one propagation layer
	wrapped := fmt.Errorf("startup failed: %w", err)
	var acqErr *AcquisitionError
	assert.ErrorAs(t, wrapped, &acqErr)
	assert.Equal(t, uint16(0x18), acqErr.Addr)
	assert.Equal(t, "/dev/i2c-1", acqErr.Controller)
}

func TestDiscoveryError_Message(t *testing.T) {
	var err error = &DiscoveryError{}
	assert.Equal(t, "no i2c bus controller found", err.Error())
}
