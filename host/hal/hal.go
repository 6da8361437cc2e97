package hal

import "time"

// Pin identifies a board pin routed to the host controller.
type Pin int

// NC marks a pin that is not connected.
const NC Pin = -1

// IsConnected returns true if the pin is routed.
func (p Pin) IsConnected() bool {
	return p != NC
}

// BusConfig carries the board-specific settings the controller needs for its
// one-time bring-up. It is owned by the caller.
type BusConfig struct {
	EnableLED           bool  // Drive the activity LED pin
	LowVoltageSignaling bool  // Allow 1.8 V signaling
	IsEMMC              bool  // Attached device is soldered eMMC
	BusWidth            uint8 // Maximum wired data bus width (1, 4 or 8)

	Cmd           Pin
	Clk           Pin
	Data          [8]Pin
	CardDetect    Pin
	IOVoltSel     Pin
	CardPwrEn     Pin
	CardWriteProt Pin
	LEDControl    Pin
	EMMCReset     Pin
}

// ResponseType selects the response length the controller waits for.
type ResponseType uint8

// Response types (SD Host Controller Simplified Specification, Command register).
const (
	ResponseNone      ResponseType = 0 // No response
	ResponseLen136    ResponseType = 1 // 136-bit response
	ResponseLen48     ResponseType = 2 // 48-bit response
	ResponseLen48Busy ResponseType = 3 // 48-bit response with busy signaling on DAT0
)

// String returns a human-readable response type.
func (r ResponseType) String() string {
	switch r {
	case ResponseNone:
		return "none"
	case ResponseLen136:
		return "136"
	case ResponseLen48:
		return "48"
	case ResponseLen48Busy:
		return "48b"
	default:
		return "unknown"
	}
}

// CommandType selects how the controller arbitrates the command against an
// in-flight data transfer.
type CommandType uint8

// Command types.
const (
	CommandNormal  CommandType = 0
	CommandSuspend CommandType = 1
	CommandResume  CommandType = 2
	CommandAbort   CommandType = 3
)

// String returns a human-readable command type.
func (c CommandType) String() string {
	switch c {
	case CommandNormal:
		return "normal"
	case CommandSuspend:
		return "suspend"
	case CommandResume:
		return "resume"
	case CommandAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// AutoCommand selects whether the controller issues CMD12/CMD23 on its own.
type AutoCommand uint8

// Auto-command modes.
const (
	AutoCommandNone AutoCommand = 0
	AutoCommandAuto AutoCommand = 1
	AutoCommand12   AutoCommand = 2
	AutoCommand23   AutoCommand = 3
)

// DataConfig describes a block transfer attached to the next command.
// Data is the DMA buffer; it must hold BlockSize*NumBlocks bytes.
type DataConfig struct {
	Data        []byte
	BlockSize   uint32
	NumBlocks   uint32
	AutoCommand AutoCommand
	IsRead      bool
}

// Length returns the total number of bytes moved by the transfer.
func (d *DataConfig) Length() int {
	return int(d.BlockSize) * int(d.NumBlocks)
}

// CommandConfig describes one command issued on the CMD line.
type CommandConfig struct {
	Index            uint8
	Argument         uint32
	EnableCRCCheck   bool
	EnableIndexCheck bool
	ResponseType     ResponseType
	Type             CommandType
	Data             *DataConfig // nil for commands without a data phase
}

// ErrorFlags mirrors the Error Interrupt Status register.
type ErrorFlags uint16

// Error interrupt status bits.
const (
	ErrCmdTimeout  ErrorFlags = 1 << 0
	ErrCmdCRC      ErrorFlags = 1 << 1
	ErrCmdEndBit   ErrorFlags = 1 << 2
	ErrCmdIndex    ErrorFlags = 1 << 3
	ErrDataTimeout ErrorFlags = 1 << 4
	ErrDataCRC     ErrorFlags = 1 << 5
	ErrDataEndBit  ErrorFlags = 1 << 6
	ErrCurrentLmt  ErrorFlags = 1 << 7
	ErrAutoCmd     ErrorFlags = 1 << 8
	ErrADMA        ErrorFlags = 1 << 9
	ErrTuning      ErrorFlags = 1 << 10
	ErrResponse    ErrorFlags = 1 << 11
	ErrBootAck     ErrorFlags = 1 << 12

	ErrNone ErrorFlags = 0
)

// Has reports whether any of the bits in mask are set.
func (f ErrorFlags) Has(mask ErrorFlags) bool {
	return f&mask != 0
}

// ResetLines selects which signal paths a software reset affects.
type ResetLines uint8

// Software reset targets.
const (
	ResetCmdLine  ResetLines = 1 << 1
	ResetDataLine ResetLines = 1 << 2
	ResetAll      ResetLines = 1 << 0

	ResetCmdDataLines = ResetCmdLine | ResetDataLine
)

// IOVoltage selects the signaling level of the bus.
type IOVoltage uint8

// Signaling voltages.
const (
	IOVoltage3V3 IOVoltage = 0
	IOVoltage1V8 IOVoltage = 1
)

// IOVoltageAction selects the card-side handshake around a voltage change.
type IOVoltageAction uint8

// Voltage change handshakes.
const (
	IOVoltageActionNone      IOVoltageAction = 0 // Change the host side only
	IOVoltageActionNegotiate IOVoltageAction = 1 // Send CMD11 and switch on success
)

// Controller defines the downstream operations of an SD host controller.
//
// The card-mode adaptation layer drives one Controller per unit. Methods run
// synchronously on the caller's goroutine; WaitTransferComplete blocks until
// the hardware finishes or its own internal timeout expires.
type Controller interface {
	// Init performs the one-time bring-up of pins, clocks and the controller.
	Init(cfg *BusConfig) error

	// SoftwareReset resets the selected signal paths.
	SoftwareReset(lines ResetLines)

	// LastCommandErrors returns the error flags latched by the last command
	// or transfer.
	LastCommandErrors() ErrorFlags

	// ClearErrors clears the error interrupt status register.
	ClearErrors()

	// SetBusWidth sets the data bus width in bits (1, 4 or 8). When
	// configureCard is true the controller also switches the card.
	SetBusWidth(width uint8, configureCard bool) error

	// SetIOVoltage changes the signaling voltage.
	SetIOVoltage(v IOVoltage, action IOVoltageAction) error

	// EnableCardPower drives the card power-enable pin.
	EnableCardPower(enable bool)

	// ConfigDataTransfer prepares the DMA engine for the next data command.
	ConfigDataTransfer(cfg *DataConfig) error

	// SendCommand issues a command and waits for command completion.
	// A non-nil error means the controller did not accept or complete it.
	SendCommand(cfg *CommandConfig) error

	// Response copies the response registers into words. For 48-bit
	// responses only words[0] is meaningful; for 136-bit responses all
	// four words hold response bits [127:8] with bits [127:120] of the
	// register reserved as zero.
	Response(words *[4]uint32, large bool) error

	// WaitTransferComplete blocks until the current data transfer finishes.
	WaitTransferComplete() error

	// SetFrequency programs the card clock to at most hz.
	SetFrequency(hz uint32, negotiate bool) error

	// Frequency returns the card clock currently programmed, in Hz.
	Frequency() uint32

	// SetDataReadTimeout sets the data timeout in card clock cycles.
	SetDataReadTimeout(cycles uint32, autoReconfigure bool) error

	// CardInserted reports the card-detect state.
	CardInserted() bool

	// CardWriteProtected reports the mechanical write-protect switch.
	CardWriteProtected() bool
}

// Timer provides the delay primitive used around power ramps and the
// inter-command gap.
type Timer interface {
	Sleep(d time.Duration)
}

// SystemTimer implements Timer with time.Sleep.
type SystemTimer struct{}

// Sleep blocks the calling goroutine for d.
func (SystemTimer) Sleep(d time.Duration) {
	time.Sleep(d)
}
