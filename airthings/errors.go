package airthings

import "github.com/pkg/errors"

var (
	// fatal, aborts the run
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")
	ErrOutputWrite        = errors.New("output write failed")

	// per device, the device is skipped
	ErrDeviceUnreachable = errors.New("device unreachable")
	ErrMalformedPayload  = errors.New("malformed payload")
)

// IsFatal reports whether err must abort the whole run rather than a single device.
func IsFatal(err error) bool {
	switch errors.Cause(err) {
	case ErrAdapterUnavailable, ErrOutputWrite:
		return true
	}
	return false
}

// Unreachable classifies err as a connection level failure of one device.
func Unreachable(err error, msg string) error {
	return errors.Wrapf(ErrDeviceUnreachable, "%s: %v", msg, err)
}
