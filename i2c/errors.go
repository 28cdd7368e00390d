package i2c

import "fmt"

// DiscoveryError means the platform exposed no I2C bus controller at all.
type DiscoveryError struct{}

func (e *DiscoveryError) Error() string {
	return "no i2c bus controller found"
}

// AcquisitionError means the device endpoint could not be claimed, typically
// because the address is already held by another process or the device does
// not answer. It keeps the offending address and controller id so the failure
// can be reported verbatim.
type AcquisitionError struct {
	Controller string
	Addr       uint16
	Err        error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("could not acquire address %#x on controller %s: %v", e.Addr, e.Controller, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}
