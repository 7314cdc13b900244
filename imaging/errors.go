package imaging

import "fmt"

// VerifyError is returned when the data read back does not hash to the
// expected value.
type VerifyError struct {
	Expected string
	Actual   string
	Bytes    uint64
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("data verification failed: %d bytes read back hash to %s instead of %s", e.Bytes, e.Actual, e.Expected)
}

// SizeError is returned when the image does not match the expected size or
// does not fit on the device.
type SizeError struct {
	Image  uint64
	Device int64
	Reason string
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("image of %d bytes, device of %d bytes: %s", e.Image, e.Device, e.Reason)
}
