package licensing

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a protocol failure mode. Codes are part of the
// public surface: callers (and any transport wrapping the service) must
// be able to tell them apart.
type ErrorCode string

const (
	// CodeInvalidKey means the key string was not found after normalization.
	CodeInvalidKey ErrorCode = "INVALID_KEY"
	// CodeKeyRevoked means the key has been permanently revoked.
	CodeKeyRevoked ErrorCode = "KEY_REVOKED"
	// CodeKeyBanned means the key has been banned.
	CodeKeyBanned ErrorCode = "KEY_BANNED"
	// CodeKeySuspended means the key is administratively suspended.
	CodeKeySuspended ErrorCode = "KEY_SUSPENDED"
	// CodeKeyExpired means the key's expiration has passed.
	CodeKeyExpired ErrorCode = "KEY_EXPIRED"
	// CodeMaxDevicesReached means the device quota is full.
	CodeMaxDevicesReached ErrorCode = "MAX_DEVICES_REACHED"
	// CodeHwidNotActivated means no active binding exists for the device.
	CodeHwidNotActivated ErrorCode = "HWID_NOT_ACTIVATED"
	// CodeHwidNotActivatedQuotaFull is reported (not returned as an
	// error) by Validate when the supplied device is unbound and an
	// activation attempt would be rejected for quota.
	CodeHwidNotActivatedQuotaFull ErrorCode = "HWID_NOT_ACTIVATED_QUOTA_FULL"
	// CodeNotActivated means deactivate found no active binding to release.
	CodeNotActivated ErrorCode = "NOT_ACTIVATED"
	// CodeKeyGenerationExhausted means key issuance could not find a free
	// code. Internal fault; must never reach end users.
	CodeKeyGenerationExhausted ErrorCode = "KEY_GENERATION_EXHAUSTED"
)

// Error is a protocol failure with a machine-readable code. Quota
// failures carry the current and maximum device counts so callers can
// prompt for device management.
type Error struct {
	Code           ErrorCode
	Message        string
	CurrentDevices int
	MaxDevices     int
}

func (e *Error) Error() string {
	return e.Message
}

// newError creates an Error with a formatted message.
func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the protocol error code of err, or "" if err is not a
// protocol error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is a protocol error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
