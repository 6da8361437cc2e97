package pkg

import "errors"

// Configuration and usage errors.
var (
	// ErrBadParam indicates a nil or otherwise unusable configuration handle.
	ErrBadParam = errors.New("bad parameter")

	// ErrInvalidUnit indicates a host-controller unit index outside the arena.
	ErrInvalidUnit = errors.New("invalid unit")

	// ErrNotConfigured indicates the unit has no configuration attached yet.
	ErrNotConfigured = errors.New("unit not configured")

	// ErrNotSupported indicates an optional operation the layer does not implement.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidParameter indicates an invalid argument was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")
)

// Transport errors reported by the host controller.
var (
	// ErrTimeout indicates the card did not answer in time.
	ErrTimeout = errors.New("timeout")

	// ErrCRC indicates a CRC mismatch on the command or data lines.
	ErrCRC = errors.New("CRC error")

	// ErrTransport indicates any other controller-reported failure.
	ErrTransport = errors.New("transport error")
)

// Card-level errors reported by the card driver.
var (
	// ErrNoCard indicates no card is inserted in the slot.
	ErrNoCard = errors.New("card not present")

	// ErrWriteProtected indicates a write to a write-protected card.
	ErrWriteProtected = errors.New("card write protected")

	// ErrOutOfRange indicates a block address beyond the card capacity.
	ErrOutOfRange = errors.New("block address out of range")

	// ErrCardState indicates the card reported an unexpected state or status bit.
	ErrCardState = errors.New("unexpected card state")

	// ErrInvalidResponse indicates a response that does not match the command sent.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrUnusableCard indicates the card rejected the host's voltage window or version.
	ErrUnusableCard = errors.New("unusable card")

	// ErrNotInitialized indicates an IO request before card initialization.
	ErrNotInitialized = errors.New("card not initialized")
)
