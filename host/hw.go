package host

import "github.com/ardnew/softmmc/pkg"

// HW is the callback table a card-mode SD/MMC driver uses to reach a host
// controller. Every method takes the 0-based unit index of the controller.
//
// The command/response protocol is split in two phases: SendCmd reports
// nothing, and the outcome of a command surfaces on the following
// GetResponse, ReadData or WriteData call. This mirrors the upstream driver
// interface.
type HW interface {
	// Init brings the unit to a known state. It is called several times
	// during card initialization; the expensive hardware bring-up runs once.
	Init(unit uint8) error

	// Delay blocks for ms milliseconds.
	Delay(ms int)

	// IsPresent reports whether a card is inserted.
	IsPresent(unit uint8) MediaState

	// IsWriteProtected reports the mechanical write-protect switch.
	IsWriteProtected(unit uint8) bool

	// SetMaxSpeed programs a card clock of at most khz and returns the
	// frequency actually configured, or 0 on error.
	SetMaxSpeed(unit uint8, khz uint16) uint16

	// SetResponseTimeout sets the response timeout in card clock cycles.
	SetResponseTimeout(unit uint8, cycles uint32)

	// SetReadDataTimeout sets the read data timeout in card clock cycles.
	SetReadDataTimeout(unit uint8, cycles uint32)

	// SendCmd issues command cmd with the given flags, expected response
	// format and argument.
	SendCmd(unit uint8, cmd uint8, flags CmdFlags, format ResponseFormat, arg uint32)

	// GetResponse stores the response of the last command in buf. The
	// length of buf is ResponseLen48 or ResponseLen136.
	GetResponse(unit uint8, buf []byte) error

	// ReadData waits for the data phase of the last read command.
	ReadData(unit uint8, buf []byte, blockSize, numBlocks int) error

	// WriteData waits for the data phase of the last write command.
	WriteData(unit uint8, buf []byte, blockSize, numBlocks int) error

	// SetDataPointer sets the buffer the next data command reads into or
	// writes from.
	SetDataPointer(unit uint8, p []byte)

	// SetBlockLen sets the block size of the next data command.
	SetBlockLen(unit uint8, blockSize uint16)

	// SetNumBlocks sets the block count of the next data command.
	SetNumBlocks(unit uint8, numBlocks uint16)

	// MaxReadBurst returns the block limit of one multi-block read.
	MaxReadBurst(unit uint8) uint16

	// MaxWriteBurst returns the block limit of one multi-block write.
	MaxWriteBurst(unit uint8) uint16

	// MaxWriteBurstRepeat returns the block limit of a repeat write, 0 if
	// not supported.
	MaxWriteBurstRepeat(unit uint8) uint16

	// MaxWriteBurstFill returns the block limit of a fill write, 0 if not
	// supported.
	MaxWriteBurstFill(unit uint8) uint16

	// Optional entries for UHS-I signaling and tuning.

	SetVoltage(unit uint8, vMinMV, vMaxMV uint16, isSDCard bool) (uint16, error)
	GetVoltage(unit uint8) (uint16, error)
	SetMaxClock(unit uint8, khz uint32, flags uint32) uint32
	EnableTuning(unit uint8) error
	DisableTuning(unit uint8, success bool) error
	StartTuning(unit uint8, blockSize int) error
	MaxTunings(unit uint8) uint16
}

// Unsupported provides the optional HW entries for controllers that do not
// implement them. Embed it in an HW implementation.
type Unsupported struct{}

// SetVoltage reports pkg.ErrNotSupported.
func (Unsupported) SetVoltage(uint8, uint16, uint16, bool) (uint16, error) {
	return 0, pkg.ErrNotSupported
}

// GetVoltage reports pkg.ErrNotSupported.
func (Unsupported) GetVoltage(uint8) (uint16, error) {
	return 0, pkg.ErrNotSupported
}

// SetMaxClock returns 0, meaning the clock was not changed.
func (Unsupported) SetMaxClock(uint8, uint32, uint32) uint32 {
	return 0
}

// EnableTuning reports pkg.ErrNotSupported.
func (Unsupported) EnableTuning(uint8) error {
	return pkg.ErrNotSupported
}

// DisableTuning reports pkg.ErrNotSupported.
func (Unsupported) DisableTuning(uint8, bool) error {
	return pkg.ErrNotSupported
}

// StartTuning reports pkg.ErrNotSupported.
func (Unsupported) StartTuning(uint8, int) error {
	return pkg.ErrNotSupported
}

// MaxTunings returns 0, meaning tuning is not supported.
func (Unsupported) MaxTunings(uint8) uint16 {
	return 0
}
