package card

import (
	"fmt"

	"github.com/ardnew/softmmc/pkg"
)

// Status is the card status carried in an R1 response.
type Status uint32

// Card status bits.
const (
	StatusOutOfRange     Status = 1 << 31
	StatusAddressError   Status = 1 << 30
	StatusBlockLenError  Status = 1 << 29
	StatusEraseSeqError  Status = 1 << 28
	StatusEraseParam     Status = 1 << 27
	StatusWPViolation    Status = 1 << 26
	StatusCardIsLocked   Status = 1 << 25
	StatusLockFailed     Status = 1 << 24
	StatusComCRCError    Status = 1 << 23
	StatusIllegalCommand Status = 1 << 22
	StatusCardECCFailed  Status = 1 << 21
	StatusCCError        Status = 1 << 20
	StatusError          Status = 1 << 19
	StatusReadyForData   Status = 1 << 8
	StatusAppCmd         Status = 1 << 5
)

// Status bits reported for the previous command rather than the current one.
const deferredBits = StatusComCRCError | StatusIllegalCommand

const (
	rangeBits   = StatusOutOfRange | StatusAddressError | StatusBlockLenError
	generalBits = StatusEraseSeqError | StatusEraseParam | StatusLockFailed |
		StatusCardECCFailed | StatusCCError | StatusError
)

// State is the card state reported in CURRENT_STATE.
type State uint8

// Card states.
const (
	StateIdle State = iota
	StateReady
	StateIdent
	StateStby
	StateTran
	StateData
	StateRcv
	StatePrg
	StateDis
)

// String returns the abbreviated state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateIdent:
		return "ident"
	case StateStby:
		return "stby"
	case StateTran:
		return "tran"
	case StateData:
		return "data"
	case StateRcv:
		return "rcv"
	case StatePrg:
		return "prg"
	case StateDis:
		return "dis"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// State returns the CURRENT_STATE field.
func (s Status) State() State {
	return State(s >> 9 & 0xF)
}

// Has reports whether any bit of mask is set.
func (s Status) Has(mask Status) bool {
	return s&mask != 0
}

// Err returns the error the card flagged for the command it answered, or
// nil. Bits that belong to the previous command are ignored.
func (s Status) Err() error {
	switch {
	case s.Has(rangeBits):
		return fmt.Errorf("card status 0x%08X: %w", uint32(s), pkg.ErrOutOfRange)
	case s.Has(StatusWPViolation):
		return fmt.Errorf("card status 0x%08X: %w", uint32(s), pkg.ErrWriteProtected)
	case s.Has(StatusCardIsLocked):
		return fmt.Errorf("card status 0x%08X: %w", uint32(s), pkg.ErrCardState)
	case s.Has(generalBits):
		return fmt.Errorf("card status 0x%08X: %w", uint32(s), pkg.ErrInvalidResponse)
	default:
		return nil
	}
}
