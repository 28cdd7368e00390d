package accel

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRegisterIO is a mock implementation of accelmon.RegisterIO using
// testify/mock. It additionally records write payloads in order and tracks
// the number of concurrent bus operations.
type MockRegisterIO struct {
	mock.Mock
	mu            sync.Mutex
	writes        [][]byte
	concurrentOps int64
	maxConcurrent int64
}

func (m *MockRegisterIO) enter() {
	concurrent := atomic.AddInt64(&m.concurrentOps, 1)
	if concurrent > atomic.LoadInt64(&m.maxConcurrent) {
		atomic.StoreInt64(&m.maxConcurrent, concurrent)
	}
}

func (m *MockRegisterIO) leave() {
	atomic.AddInt64(&m.concurrentOps, -1)
}

func (m *MockRegisterIO) Write(ctx context.Context, buffer []byte) error {
	m.enter()
	defer m.leave()
	args := m.Called(ctx, buffer)
	if args.Error(0) == nil {
		buf := make([]byte, len(buffer))
		copy(buf, buffer)
		m.mu.Lock()
		m.writes = append(m.writes, buf)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockRegisterIO) WriteThenRead(ctx context.Context, w, r []byte) error {
	m.enter()
	defer m.leave()
	args := m.Called(ctx, w, r)
	if args.Get(0) != nil {
		if data, ok := args.Get(0).([]byte); ok && len(data) <= len(r) {
			copy(r, data)
		}
	}
	return args.Error(1)
}

func (m *MockRegisterIO) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestBMA250_DecodeSample(t *testing.T) {
	tests := []struct {
		given    []byte
		expected Acceleration
	}{
		// X raw = 128, Y raw = 64, Z raw = 512
		{[]byte{0x80, 0x00, 0x40, 0x00, 0x00, 0x02}, Acceleration{X: 2, Y: 1, Z: 8}},
		// zero on all axes
		{[]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, Acceleration{}},
		// X raw = -128: truncation toward zero on negative values
		{[]byte{0x80, 0xFF, 0x00, 0x00, 0x00, 0x00}, Acceleration{X: -2}},
		// X raw = 127 truncates to 1
		{[]byte{0x7F, 0x00, 0x00, 0x00, 0x00, 0x00}, Acceleration{X: 1}},
		// Y raw = -65 truncates to -1
		{[]byte{0x00, 0x00, 0xBF, 0xFF, 0x00, 0x00}, Acceleration{Y: -1}},
		// full-scale negative: raw = -32768
		{[]byte{0x00, 0x80, 0x00, 0x00, 0x00, 0x00}, Acceleration{X: -512}},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given), func(t *testing.T) {
			assert.Equal(t, test.expected, decodeSample(test.given, 64))
			// decoding is pure: a second pass yields the same value
			assert.Equal(t, test.expected, decodeSample(test.given, 64))
		})
	}
}

func TestBMA250_ConfigureWriteOrder(t *testing.T) {
	bus := new(MockRegisterIO)
	sensor := NewBMA250(bus)
	ctx := context.Background()

	bus.On("Write", mock.Anything, []byte{regRange, Range2G}).Return(nil).Once()
	bus.On("Write", mock.Anything, []byte{regBandwidth, Bandwidth7Hz81}).Return(nil).Once()

	err := sensor.Configure(ctx)
	assert.NoError(t, err)

	assert.Equal(t, [][]byte{
		{regRange, Range2G},
		{regBandwidth, Bandwidth7Hz81},
	}, bus.writes, "range must be written before bandwidth")
	bus.AssertExpectations(t)
}

func TestBMA250_ConfigureFailFast(t *testing.T) {
	bus := new(MockRegisterIO)
	sensor := NewBMA250(bus)
	ctx := context.Background()

	bus.On("Write", mock.Anything, []byte{regRange, Range2G}).
		Return(errors.New("i2c write failed")).Once()

	err := sensor.Configure(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bma250: range write failed: i2c write failed")
	// the bandwidth write is never attempted after a failed range write
	bus.AssertNumberOfCalls(t, "Write", 1)
	bus.AssertExpectations(t)
}

func TestBMA250_ConfigureUnsupportedRange(t *testing.T) {
	bus := new(MockRegisterIO)
	sensor := NewBMA250(bus, WithRange(Range16G))

	err := sensor.Configure(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no divisor for range 0xc")
	bus.AssertNumberOfCalls(t, "Write", 0)
}

func TestBMA250_SampleSingleTransaction(t *testing.T) {
	bus := new(MockRegisterIO)
	sensor := NewBMA250(bus)
	ctx := context.Background()

	bus.On("WriteThenRead", mock.Anything, []byte{regAccX}, mock.MatchedBy(func(r []byte) bool {
		return len(r) == 6
	})).Return([]byte{0x80, 0x00, 0x40, 0x00, 0x00, 0x02}, nil).Once()

	reading, err := sensor.Sample(ctx)
	assert.NoError(t, err)
	assert.Equal(t, Acceleration{X: 2, Y: 1, Z: 8}, reading)

	// all three axes come from one auto-increment transaction
	bus.AssertNumberOfCalls(t, "WriteThenRead", 1)
	bus.AssertExpectations(t)
}

func TestBMA250_SampleReadError(t *testing.T) {
	bus := new(MockRegisterIO)
	sensor := NewBMA250(bus)
	ctx := context.Background()

	cause := errors.New("i2c read failed")
	bus.On("WriteThenRead", mock.Anything, []byte{regAccX}, mock.Anything).
		Return(nil, cause).Once()

	_, err := sensor.Sample(ctx)
	assert.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "bma250: sample read failed")
	bus.AssertExpectations(t)
}

func TestBMA250_MutexProtection(t *testing.T) {
	bus := new(MockRegisterIO)
	sensor := NewBMA250(bus)
	ctx := context.Background()

	const numOps = 5
	for i := 0; i < numOps; i++ {
		bus.On("WriteThenRead", mock.Anything, []byte{regAccX}, mock.Anything).
			Return([]byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x00}, nil).Once()
	}

	var wg sync.WaitGroup
	wg.Add(numOps)
	for i := 0; i < numOps; i++ {
		go func() {
			defer wg.Done()
			_, err := sensor.Sample(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&bus.maxConcurrent), int64(1), "driver mutex should serialize bus access")
	bus.AssertExpectations(t)
}

func TestBMA250_Release(t *testing.T) {
	bus := new(MockRegisterIO)
	sensor := NewBMA250(bus)

	bus.On("Release", mock.Anything).Return(nil).Once()
	assert.NoError(t, sensor.Release(context.Background()))
	bus.AssertExpectations(t)
}
