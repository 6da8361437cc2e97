package sim

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// Default controller parameters.
const (
	DefaultBaseClock = 100_000_000 // Hz
	DefaultCapacity  = 8192        // 512-byte blocks (4 MiB)

	maxDivider = 1023 // 10-bit divided clock mode
)

// Option configures a Controller.
type Option func(*Controller)

// WithCapacity sets the card size in 512-byte blocks. The size is rounded
// up to what the CSD can express.
func WithCapacity(blocks uint32) Option {
	return func(c *Controller) {
		c.capacity = blocks
	}
}

// WithWriteProtect sets the write-protect switch and makes the card reject
// writes.
func WithWriteProtect(wp bool) Option {
	return func(c *Controller) {
		c.writeProtect = wp
	}
}

// WithStandardCapacity simulates a standard capacity (SDSC) card: byte
// addressing and a version 1.0 CSD.
func WithStandardCapacity() Option {
	return func(c *Controller) {
		c.standard = true
	}
}

// WithBaseClock sets the controller base clock the card clock is divided
// from.
func WithBaseClock(hz uint32) Option {
	return func(c *Controller) {
		c.baseClock = hz
	}
}

// WithSerial sets the product serial number reported in the CID.
func WithSerial(serial uint32) Option {
	return func(c *Controller) {
		c.serial = serial
	}
}

// WithBusyPolls sets how many ACMD41 replies report the card busy before
// power-up completes.
func WithBusyPolls(n int) Option {
	return func(c *Controller) {
		c.busyPolls = n
	}
}

// WithNoCard starts the controller with an empty slot.
func WithNoCard() Option {
	return func(c *Controller) {
		c.removed = true
	}
}

// Controller is an in-process [hal.Controller] with an SD memory card
// attached. It is safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	// Options.
	capacity     uint32
	writeProtect bool
	standard     bool
	baseClock    uint32
	serial       uint32
	busyPolls    int
	removed      bool

	card *card

	// Controller state.
	initCount   int
	busWidth    uint8
	voltage     hal.IOVoltage
	powered     bool
	freq        uint32
	dataTimeout uint32
	errs        hal.ErrorFlags
	resp        [4]uint32
	pending     *hal.DataConfig
	active      *hal.DataConfig
	xfer        *transfer

	// Error injection.
	cmdErrs  map[uint8]hal.ErrorFlags
	dataErrs []hal.ErrorFlags
	reject   error
	waitErr  error

	// Recording.
	commands []hal.CommandConfig
	dataCfgs []hal.DataConfig
	resets   []hal.ResetLines
	widths   []uint8
}

// New creates a controller with a card inserted.
func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		capacity:  DefaultCapacity,
		baseClock: DefaultBaseClock,
		serial:    defaultSerial,
		busyPolls: 2,
		busWidth:  1,
		cmdErrs:   make(map[uint8]hal.ErrorFlags),
	}
	for _, opt := range opts {
		opt(c)
	}

	blocks, err := roundCapacity(c.capacity, !c.standard)
	if err != nil {
		return nil, fmt.Errorf("capacity %d blocks: %w", c.capacity, err)
	}
	if c.baseClock == 0 {
		return nil, fmt.Errorf("base clock: %w", pkg.ErrInvalidParameter)
	}
	c.capacity = blocks

	c.card = newCard(blocks, !c.standard, c.serial)
	c.card.wp = c.writeProtect
	c.card.maxPolls = c.busyPolls
	c.card.polls = c.busyPolls

	pkg.LogDebug(pkg.ComponentSim, "controller created",
		"blocks", blocks,
		"highCapacity", !c.standard,
		"writeProtect", c.writeProtect)
	return c, nil
}

// =============================================================================
// hal.Controller
// =============================================================================

// Init performs the simulated bring-up.
func (c *Controller) Init(cfg *hal.BusConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg == nil {
		return fmt.Errorf("init: %w", pkg.ErrInvalidParameter)
	}
	if cfg.BusWidth != 0 && cfg.BusWidth != 1 && cfg.BusWidth != 4 && cfg.BusWidth != 8 {
		return fmt.Errorf("init: bus width %d: %w", cfg.BusWidth, pkg.ErrInvalidParameter)
	}
	c.initCount++
	c.busWidth = 1
	c.freq = 0
	c.errs = hal.ErrNone
	c.pending, c.active, c.xfer = nil, nil, nil

	pkg.LogDebug(pkg.ComponentSim, "controller initialized", "count", c.initCount)
	return nil
}

// SoftwareReset resets the selected signal paths. A data line reset aborts
// the transfer in progress. The card is not affected.
func (c *Controller) SoftwareReset(lines hal.ResetLines) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resets = append(c.resets, lines)
	if lines&(hal.ResetDataLine|hal.ResetAll) != 0 {
		c.pending, c.active, c.xfer = nil, nil, nil
	}
	if lines&hal.ResetAll != 0 {
		c.errs = hal.ErrNone
		c.busWidth = 1
	}
	pkg.LogDebug(pkg.ComponentSim, "software reset", "lines", lines)
}

// LastCommandErrors returns the latched error flags.
func (c *Controller) LastCommandErrors() hal.ErrorFlags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs
}

// ClearErrors clears the latched error flags.
func (c *Controller) ClearErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = hal.ErrNone
}

// SetBusWidth sets the host bus width. With configureCard the card is
// switched too, as ACMD6 would.
func (c *Controller) SetBusWidth(width uint8, configureCard bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch width {
	case 1, 4, 8:
	default:
		return fmt.Errorf("bus width %d: %w", width, pkg.ErrInvalidParameter)
	}
	c.busWidth = width
	c.widths = append(c.widths, width)
	if configureCard && width != 8 {
		c.card.busWidth = width
	}
	return nil
}

// SetIOVoltage changes the signaling voltage. The simulated card only
// signals at 3.3 V, so negotiation of 1.8 V fails.
func (c *Controller) SetIOVoltage(v hal.IOVoltage, action hal.IOVoltageAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v == hal.IOVoltage1V8 && action == hal.IOVoltageActionNegotiate {
		return fmt.Errorf("1.8 V signaling: %w", pkg.ErrNotSupported)
	}
	c.voltage = v
	return nil
}

// EnableCardPower switches card power. Removing power resets the card.
func (c *Controller) EnableCardPower(enable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.powered && !enable {
		c.card.reset()
	}
	c.powered = enable
}

// ConfigDataTransfer prepares the data phase of the next command.
func (c *Controller) ConfigDataTransfer(cfg *hal.DataConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg == nil || cfg.BlockSize == 0 || cfg.NumBlocks == 0 {
		return fmt.Errorf("data transfer: %w", pkg.ErrInvalidParameter)
	}
	if len(cfg.Data) < cfg.Length() {
		return fmt.Errorf("data transfer of %d bytes into %d: %w",
			cfg.Length(), len(cfg.Data), pkg.ErrBufferTooSmall)
	}
	c.pending = cfg
	c.dataCfgs = append(c.dataCfgs, *cfg)
	return nil
}

// SendCommand issues cfg to the card and latches the outcome.
func (c *Controller) SendCommand(cfg *hal.CommandConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commands = append(c.commands, *cfg)
	if c.initCount == 0 {
		return fmt.Errorf("CMD%d: %w", cfg.Index, pkg.ErrNotInitialized)
	}
	if err := c.reject; err != nil {
		c.reject = nil
		return fmt.Errorf("CMD%d: %w", cfg.Index, err)
	}
	if cfg.Data != nil && cfg.Data != c.pending {
		return fmt.Errorf("CMD%d: data transfer not configured: %w", cfg.Index, pkg.ErrInvalidParameter)
	}

	c.pending = nil
	c.errs = hal.ErrNone
	c.resp = [4]uint32{}

	if flags, ok := c.cmdErrs[cfg.Index]; ok {
		delete(c.cmdErrs, cfg.Index)
		c.errs = flags
		pkg.LogDebug(pkg.ComponentSim, "injected command error",
			"cmd", cfg.Index,
			"flags", fmt.Sprintf("0x%04X", uint16(flags)))
		return nil
	}

	if c.removed {
		if cfg.ResponseType != hal.ResponseNone {
			c.errs = hal.ErrCmdTimeout
		}
		return nil
	}

	r := c.card.command(cfg.Index, cfg.Argument)
	if r.silent {
		if cfg.ResponseType != hal.ResponseNone {
			c.errs = hal.ErrCmdTimeout
		}
	} else {
		c.resp = r.words
	}
	if r.xfer != nil {
		c.xfer = r.xfer
		c.active = cfg.Data
	}

	pkg.LogDebug(pkg.ComponentSim, "command",
		"cmd", cfg.Index,
		"arg", fmt.Sprintf("0x%08X", cfg.Argument),
		"state", c.card.state,
		"silent", r.silent)
	return nil
}

// Response returns the response registers of the last command.
func (c *Controller) Response(words *[4]uint32, large bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	*words = c.resp
	if !large {
		words[1], words[2], words[3] = 0, 0, 0
	}
	return nil
}

// WaitTransferComplete moves the data of the accepted transfer between the
// card and the configured buffer. A transfer the card never accepted ends
// with a data timeout.
func (c *Controller) WaitTransferComplete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	x, dc := c.xfer, c.active
	c.xfer, c.active = nil, nil

	if err := c.waitErr; err != nil {
		c.waitErr = nil
		if x != nil && !x.multi {
			c.card.state = stateTran
		}
		return err
	}
	if x == nil || dc == nil || x.write == dc.IsRead {
		c.errs |= hal.ErrDataTimeout
		return nil
	}

	var flags hal.ErrorFlags
	if len(c.dataErrs) > 0 {
		flags, c.dataErrs = c.dataErrs[0], c.dataErrs[1:]
	}

	if dc.BlockSize != blockSize {
		flags |= hal.ErrDataEndBit
	}
	for i := uint32(0); i < dc.NumBlocks && flags == hal.ErrNone; i++ {
		lba := x.lba + i
		if lba >= c.card.blocks {
			c.card.status |= statusOutOfRange
			flags |= hal.ErrDataTimeout
			break
		}
		buf := dc.Data[i*blockSize : (i+1)*blockSize]
		if x.write {
			c.card.writeBlock(lba, buf)
		} else {
			c.card.readBlock(lba, buf)
		}
	}
	c.errs |= flags

	if !x.multi {
		c.card.state = stateTran
	}
	pkg.LogDebug(pkg.ComponentSim, "transfer complete",
		"lba", x.lba,
		"blocks", dc.NumBlocks,
		"write", x.write,
		"flags", fmt.Sprintf("0x%04X", uint16(flags)))
	return nil
}

// SetFrequency programs the largest divided clock not above hz.
func (c *Controller) SetFrequency(hz uint32, negotiate bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hz == 0 {
		return fmt.Errorf("frequency 0: %w", pkg.ErrInvalidParameter)
	}
	if hz >= c.baseClock {
		c.freq = c.baseClock
		return nil
	}
	div := (c.baseClock + 2*hz - 1) / (2 * hz)
	if div > maxDivider {
		return fmt.Errorf("frequency %d Hz below %d Hz: %w",
			hz, c.baseClock/(2*maxDivider), pkg.ErrInvalidParameter)
	}
	c.freq = c.baseClock / (2 * div)
	return nil
}

// Frequency returns the programmed card clock in Hz.
func (c *Controller) Frequency() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq
}

// SetDataReadTimeout records the data timeout.
func (c *Controller) SetDataReadTimeout(cycles uint32, autoReconfigure bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataTimeout = cycles
	return nil
}

// CardInserted reports whether a card is in the slot.
func (c *Controller) CardInserted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.removed
}

// CardWriteProtected reports the write-protect switch.
func (c *Controller) CardWriteProtected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.removed && c.writeProtect
}

// =============================================================================
// Slot control and error injection
// =============================================================================

// Insert puts the card back into the slot. The card starts in the idle
// state.
func (c *Controller) Insert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = false
	c.card.reset()
}

// Remove pulls the card. Commands time out until Insert.
func (c *Controller) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = true
	c.xfer, c.active = nil, nil
}

// InjectCommandError makes the next command with index cmd fail with flags
// instead of reaching the card.
func (c *Controller) InjectCommandError(cmd uint8, flags hal.ErrorFlags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmdErrs[cmd] = flags
}

// InjectDataError makes the next data transfer latch flags. Injected
// errors queue up in call order.
func (c *Controller) InjectDataError(flags hal.ErrorFlags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataErrs = append(c.dataErrs, flags)
}

// RejectNext makes the controller refuse the next command with err.
func (c *Controller) RejectNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reject = err
}

// FailNextWait makes the next WaitTransferComplete return err.
func (c *Controller) FailNextWait(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitErr = err
}

// =============================================================================
// Inspection
// =============================================================================

// Capacity returns the card size in 512-byte blocks.
func (c *Controller) Capacity() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// InitCount returns how many times Init ran.
func (c *Controller) InitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initCount
}

// Commands returns the commands issued so far.
func (c *Controller) Commands() []hal.CommandConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.commands)
}

// CommandIndices returns the indices of the commands issued so far.
func (c *Controller) CommandIndices() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := make([]uint8, len(c.commands))
	for i, cmd := range c.commands {
		idx[i] = cmd.Index
	}
	return idx
}

// DataConfigs returns the data transfers configured so far.
func (c *Controller) DataConfigs() []hal.DataConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.dataCfgs)
}

// Resets returns the software resets issued so far.
func (c *Controller) Resets() []hal.ResetLines {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.resets)
}

// BusWidths returns the host bus widths set so far.
func (c *Controller) BusWidths() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.widths)
}

// BusWidth returns the current host bus width.
func (c *Controller) BusWidth() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busWidth
}

// CardBusWidth returns the bus width the card was switched to.
func (c *Controller) CardBusWidth() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.card.busWidth
}

// CardState returns the name of the card's current state.
func (c *Controller) CardState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.card.state.String()
}

// IOVoltage returns the signaling voltage.
func (c *Controller) IOVoltage() hal.IOVoltage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voltage
}

// Powered reports whether card power is enabled.
func (c *Controller) Powered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powered
}

// DataTimeout returns the data timeout in card clock cycles.
func (c *Controller) DataTimeout() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataTimeout
}

// Block returns a copy of block lba as stored on the card.
func (c *Controller) Block(lba uint32) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, blockSize)
	c.card.readBlock(lba, buf)
	return buf
}

// CSD returns the card's CSD register.
func (c *Controller) CSD() [16]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.card.csd
}

// CID returns the card's CID register.
func (c *Controller) CID() [16]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.card.cid
}
