package host

import (
	"fmt"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// CardError is the closed set of transport results reported to the upstream
// driver. Numeric values are part of the upstream driver ABI.
//
// CardError implements error. NoError is never returned as an error; use
// [CardError.Err] to convert a classification into an error value.
type CardError int

// Card transport results.
const (
	NoError              CardError = 0
	ResponseTimeout      CardError = 1
	ResponseCRCError     CardError = 2
	ReadTimeout          CardError = 3
	ReadCRCError         CardError = 4
	WriteCRCError        CardError = 5
	ResponseGenericError CardError = 6
	ReadGenericError     CardError = 7
	WriteGenericError    CardError = 8

	// WriteTimeout is part of the taxonomy but is not produced by the
	// card-mode classifier: the upstream driver reads a write-data timeout
	// as ResponseTimeout.
	WriteTimeout CardError = 9
)

// String returns the name of the result.
func (e CardError) String() string {
	switch e {
	case NoError:
		return "no error"
	case ResponseTimeout:
		return "response timeout"
	case ResponseCRCError:
		return "response CRC error"
	case ReadTimeout:
		return "read timeout"
	case ReadCRCError:
		return "read CRC error"
	case WriteCRCError:
		return "write CRC error"
	case ResponseGenericError:
		return "response error"
	case ReadGenericError:
		return "read error"
	case WriteGenericError:
		return "write error"
	case WriteTimeout:
		return "write timeout"
	default:
		return fmt.Sprintf("card error %d", int(e))
	}
}

// Error implements error.
func (e CardError) Error() string {
	return e.String()
}

// Unwrap maps the result onto the transport sentinel it belongs to, so
// callers can test the class with errors.Is(err, pkg.ErrCRC).
func (e CardError) Unwrap() error {
	switch e {
	case NoError:
		return nil
	case ResponseTimeout, ReadTimeout, WriteTimeout:
		return pkg.ErrTimeout
	case ResponseCRCError, ReadCRCError, WriteCRCError:
		return pkg.ErrCRC
	default:
		return pkg.ErrTransport
	}
}

// Err returns nil for NoError and e otherwise.
func (e CardError) Err() error {
	if e == NoError {
		return nil
	}
	return e
}

// ErrorContext selects which family of results a classification produces.
type ErrorContext uint8

// Classification contexts.
const (
	ContextResponse ErrorContext = iota
	ContextReadData
	ContextWriteData
)

// String returns a human-readable context.
func (c ErrorContext) String() string {
	switch c {
	case ContextResponse:
		return "response"
	case ContextReadData:
		return "read"
	case ContextWriteData:
		return "write"
	default:
		return "unknown"
	}
}

// Classify maps raw controller error flags onto a CardError. The first
// matching rule wins: no flags, CRC, timeout, anything else. The response
// context tests the command-line bits, the data contexts the data-line bits.
func Classify(flags hal.ErrorFlags, ctx ErrorContext) CardError {
	if flags == hal.ErrNone {
		return NoError
	}

	crc, timeout := hal.ErrDataCRC, hal.ErrDataTimeout
	if ctx == ContextResponse {
		crc, timeout = hal.ErrCmdCRC, hal.ErrCmdTimeout
	}

	switch {
	case flags.Has(crc):
		switch ctx {
		case ContextReadData:
			return ReadCRCError
		case ContextWriteData:
			return WriteCRCError
		default:
			return ResponseCRCError
		}
	case flags.Has(timeout):
		if ctx == ContextReadData {
			return ReadTimeout
		}
		return ResponseTimeout
	default:
		switch ctx {
		case ContextReadData:
			return ReadGenericError
		case ContextWriteData:
			return WriteGenericError
		default:
			return ResponseGenericError
		}
	}
}
