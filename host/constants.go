package host

import (
	"fmt"
	"strings"
	"time"
)

// NumUnits is the number of host-controller units the layer can drive.
const NumUnits = 4

// Response buffer sizes, including the leading byte that carries the start
// bit on the wire and is never surfaced by the controller.
const (
	ResponseLen48  = 6  // 48-bit response
	ResponseLen136 = 17 // 136-bit response
)

// Burst limits reported to the upstream driver.
const (
	MaxBurstBlocks   = 0xFFFF // Block count register is wider than the 16-bit callback
	BurstUnsupported = 0      // Repeat and fill bursts are not implemented
)

// Bus bring-up timing.
const (
	// SupplyRampUp is the settle time after (re)asserting power-related pins.
	SupplyRampUp = 35 * time.Millisecond

	// InitClockKHz is the card clock during identification.
	InitClockKHz = 400

	// NccMinCycles is the number of clock cycles between the end bit of a
	// command and the start bit of the next one.
	NccMinCycles = 80

	// NccMin is NccMinCycles at the identification clock rate.
	NccMin = time.Duration(1000*NccMinCycles/InitClockKHz) * time.Microsecond
)

// Bus widths in bits.
const (
	busWidth1 uint8 = 1
	busWidth4 uint8 = 4
	busWidth8 uint8 = 8
)

// Command indices with special handling.
const (
	CmdGoIdleState      uint8 = 0
	CmdStopTransmission uint8 = 12
)

// CmdFlags carries additional information about a command. The bit values
// are part of the upstream driver ABI.
type CmdFlags uint32

// Command flags.
const (
	CmdFlagDataTransfer     CmdFlags = 1 << 0  // Command has a data phase
	CmdFlagWriteTransfer    CmdFlags = 1 << 1  // Data phase is host to card
	CmdFlagSetBusy          CmdFlags = 1 << 2  // Response signals busy on DAT0
	CmdFlagInitialize       CmdFlags = 1 << 3  // CMD0, preceded by the init clock sequence
	CmdFlagUseSD4Mode       CmdFlags = 1 << 4  // Transfer data on 4 lines
	CmdFlagStopTrans        CmdFlags = 1 << 5  // CMD12
	CmdFlagWriteBurstRepeat CmdFlags = 1 << 6  // Write the same block repeatedly
	CmdFlagUseMMC8Mode      CmdFlags = 1 << 7  // Transfer data on 8 lines
	CmdFlagNoCRCCheck       CmdFlags = 1 << 8  // Skip the response CRC check
	CmdFlagWriteBurstFill   CmdFlags = 1 << 9  // Fill blocks with a 32-bit pattern
	CmdFlagSwitchVoltage    CmdFlags = 1 << 10 // CMD11 voltage switch sequence
)

// Flags the card-mode layer accepts but does not act on.
const unsupportedFlags = CmdFlagWriteBurstRepeat | CmdFlagWriteBurstFill | CmdFlagSwitchVoltage

var cmdFlagNames = [...]string{
	"data", "write", "busy", "init", "sd4", "stop",
	"repeat", "mmc8", "nocrc", "fill", "vswitch",
}

// Has reports whether all bits of mask are set.
func (f CmdFlags) Has(mask CmdFlags) bool {
	return f&mask == mask
}

// String returns the set flags joined by '|'.
func (f CmdFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for i, name := range cmdFlagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if rest := f &^ (1<<len(cmdFlagNames) - 1); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%X", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ResponseFormat is the response type of a command as defined by the SD
// physical layer specification. Values are part of the upstream driver ABI.
type ResponseFormat uint8

// Response formats.
const (
	ResponseFormatNone ResponseFormat = 0
	ResponseFormatR1   ResponseFormat = 1
	ResponseFormatR2   ResponseFormat = 2
	ResponseFormatR3   ResponseFormat = 3

	// R6 (published RCA) and R7 (interface condition) share the R1 layout.
	ResponseFormatR6 = ResponseFormatR1
	ResponseFormatR7 = ResponseFormatR1
)

// String returns a human-readable response format.
func (r ResponseFormat) String() string {
	switch r {
	case ResponseFormatNone:
		return "none"
	case ResponseFormatR1:
		return "R1"
	case ResponseFormatR2:
		return "R2"
	case ResponseFormatR3:
		return "R3"
	default:
		return fmt.Sprintf("R?(%d)", uint8(r))
	}
}

// MediaState is the card presence reported to the upstream driver.
type MediaState int

// Media states.
const (
	MediaNotPresent   MediaState = 0
	MediaIsPresent    MediaState = 1
	MediaStateUnknown MediaState = 2
)

// String returns a human-readable media state.
func (m MediaState) String() string {
	switch m {
	case MediaNotPresent:
		return "not present"
	case MediaIsPresent:
		return "present"
	default:
		return "unknown"
	}
}

// UnitState tracks the one-time hardware bring-up of a unit.
type UnitState uint8

// Unit states.
const (
	UnitUninitialized UnitState = iota
	UnitInitializing
	UnitReady
)

// String returns a human-readable unit state.
func (s UnitState) String() string {
	switch s {
	case UnitUninitialized:
		return "Uninitialized"
	case UnitInitializing:
		return "Initializing"
	case UnitReady:
		return "Ready"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}
