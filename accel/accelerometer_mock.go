package accel

import (
	"context"
)

// SampleBehaviorFunc defines the function signature for accelerometer behavior.
// It returns one decoded acceleration sample or an error.
type SampleBehaviorFunc func(ctx context.Context) (Acceleration, error)

// MockAccelerometer is a mock implementation of a 3-axis accelerometer that
// uses a behavior function to produce samples without requiring hardware.
// This can be used to mock sensors like BMA250.
type MockAccelerometer struct {
	behavior SampleBehaviorFunc
}

// NewMockAccelerometer creates a new mock accelerometer with the given behavior function.
// The behavior function is called whenever Sample is invoked.
//
// Example usage:
//
//	sensor := NewMockAccelerometer(func(ctx context.Context) (Acceleration, error) {
//		return Acceleration{X: 0, Y: 0, Z: 16}, nil
//	})
func NewMockAccelerometer(behavior SampleBehaviorFunc) *MockAccelerometer {
	return &MockAccelerometer{behavior: behavior}
}

// Configure is a no-op; the mock has no registers to set up.
func (m *MockAccelerometer) Configure(ctx context.Context) error {
	return nil
}

// Sample returns the next reading by calling the behavior function.
func (m *MockAccelerometer) Sample(ctx context.Context) (Acceleration, error) {
	return m.behavior(ctx)
}
