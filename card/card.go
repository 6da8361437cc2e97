package card

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ardnew/softmmc/host"
	"github.com/ardnew/softmmc/pkg"
)

// blockSize is the data block size used for all transfers.
const blockSize = 512

// Command indices.
const (
	cmdGoIdleState      = 0
	cmdAllSendCID       = 2
	cmdSendRelAddr      = 3
	cmdSelectCard       = 7
	cmdSendIfCond       = 8
	cmdSendCSD          = 9
	cmdStopTransmission = 12
	cmdSendStatus       = 13
	cmdSetBlockLen      = 16
	cmdReadSingle       = 17
	cmdReadMultiple     = 18
	cmdWriteSingle      = 24
	cmdWriteMultiple    = 25
	cmdAppCmd           = 55

	acmdSetBusWidth = 6
	acmdSendOpCond  = 41
)

// Arguments and OCR bits.
const (
	ifCondPattern    = 0x1AA      // 2.7-3.6 V, check pattern 0xAA
	ocrVoltageWindow = 0x00FF8000 // 2.7-3.6 V
	ocrHCS           = 1 << 30
	ocrBusy          = 1 << 31 // set when power-up is complete
	busWidthArg4     = 2
)

// Defaults.
const (
	DefaultRetries     = 5
	DefaultInitPolls   = 1000
	DefaultMaxSpeedKHz = 25000

	pollDelayMs    = 1
	readTimeoutMs  = 100
	responseCycles = 64
)

// Option configures a Card.
type Option func(*Card)

// WithRetries sets how many times a command whose response fails is sent
// again.
func WithRetries(n int) Option {
	return func(c *Card) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithWideBus allows switching the card to the 4-bit data bus.
func WithWideBus(enable bool) Option {
	return func(c *Card) {
		c.wideBus = enable
	}
}

// WithMaxSpeed caps the card clock in kHz after identification.
func WithMaxSpeed(khz uint16) Option {
	return func(c *Card) {
		if khz > 0 {
			c.maxSpeed = khz
		}
	}
}

// WithInitPolls sets how many ACMD41 attempts wait for the card to finish
// power-up.
func WithInitPolls(n int) Option {
	return func(c *Card) {
		if n > 0 {
			c.initPolls = n
		}
	}
}

// Card drives one SD memory card through a [host.HW] callback table.
//
// A Card serializes all access to its unit. Cards on different units of the
// same callback table may be used concurrently.
type Card struct {
	mu   sync.Mutex
	hw   host.HW
	unit uint8

	retries   int
	wideBus   bool
	maxSpeed  uint16
	initPolls int

	ready        bool
	highCapacity bool
	rca          uint16
	ocr          uint32
	busWidth     uint8
	clockKHz     uint16
	csd          CSD
	cid          CID

	resp [host.ResponseLen136]byte
}

// New creates a card driver for unit of hw. The card is not touched until
// Init.
func New(hw host.HW, unit uint8, opts ...Option) *Card {
	c := &Card{
		hw:        hw,
		unit:      unit,
		retries:   DefaultRetries,
		wideBus:   true,
		maxSpeed:  DefaultMaxSpeedKHz,
		initPolls: DefaultInitPolls,
		busWidth:  1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init identifies the card and brings it to the transfer state.
//
// The sequence is CMD0, CMD8, CMD55+ACMD41 until power-up completes, CMD2,
// CMD3, CMD9, CMD7, then ACMD6 for the 4-bit bus and CMD16 on standard
// capacity cards. The card clock is raised to the CSD maximum last.
func (c *Card) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready = false
	c.busWidth = 1

	if c.hw.IsPresent(c.unit) == host.MediaNotPresent {
		return fmt.Errorf("unit %d: %w", c.unit, pkg.ErrNoCard)
	}
	if err := c.hw.Init(c.unit); err != nil {
		return fmt.Errorf("unit %d: %w", c.unit, err)
	}
	if c.hw.SetMaxSpeed(c.unit, host.InitClockKHz) == 0 {
		return fmt.Errorf("unit %d: identification clock: %w", c.unit, pkg.ErrNotSupported)
	}
	c.hw.SetResponseTimeout(c.unit, responseCycles)

	c.hw.SendCmd(c.unit, cmdGoIdleState, host.CmdFlagInitialize, host.ResponseFormatNone, 0)

	// Only version 2.00 cards answer CMD8; older cards time out.
	hcs := uint32(0)
	if echo, err := c.command(cmdSendIfCond, 0, host.ResponseFormatR7, ifCondPattern); err == nil {
		if echo&0xFFF != ifCondPattern {
			return fmt.Errorf("unit %d: CMD8 echo 0x%03X: %w", c.unit, echo&0xFFF, pkg.ErrUnusableCard)
		}
		hcs = ocrHCS
	} else {
		pkg.LogDebug(pkg.ComponentCard, "no CMD8 response, assuming version 1 card",
			"unit", c.unit,
			"error", err)
	}

	if err := c.powerUp(ctx, ocrVoltageWindow|hcs); err != nil {
		return fmt.Errorf("unit %d: %w", c.unit, err)
	}

	cid, err := c.register(cmdAllSendCID, 0)
	if err != nil {
		return fmt.Errorf("unit %d: read CID: %w", c.unit, err)
	}
	c.cid = CID(cid)

	r6, err := c.command(cmdSendRelAddr, 0, host.ResponseFormatR6, 0)
	if err != nil {
		return fmt.Errorf("unit %d: get RCA: %w", c.unit, err)
	}
	c.rca = uint16(r6 >> 16)

	csd, err := c.register(cmdSendCSD, c.rcaArg())
	if err != nil {
		return fmt.Errorf("unit %d: read CSD: %w", c.unit, err)
	}
	c.csd = CSD(csd)

	if _, err := c.r1(cmdSelectCard, host.CmdFlagSetBusy, c.rcaArg()); err != nil {
		return fmt.Errorf("unit %d: select: %w", c.unit, err)
	}

	if c.wideBus {
		if _, err := c.appR1(acmdSetBusWidth, busWidthArg4); err != nil {
			return fmt.Errorf("unit %d: set bus width: %w", c.unit, err)
		}
		c.busWidth = 4
	}
	if !c.highCapacity {
		if _, err := c.r1(cmdSetBlockLen, 0, blockSize); err != nil {
			return fmt.Errorf("unit %d: set block length: %w", c.unit, err)
		}
	}

	khz := c.maxSpeed
	if limit := c.csd.MaxClockKHz(); limit > 0 && limit < uint32(khz) {
		khz = uint16(limit)
	}
	if c.clockKHz = c.hw.SetMaxSpeed(c.unit, khz); c.clockKHz == 0 {
		return fmt.Errorf("unit %d: data clock %d kHz: %w", c.unit, khz, pkg.ErrNotSupported)
	}
	c.hw.SetReadDataTimeout(c.unit, uint32(c.clockKHz)*readTimeoutMs)

	c.ready = true
	pkg.LogInfo(pkg.ComponentCard, "card ready",
		"unit", c.unit,
		"cid", c.cid.String(),
		"blocks", c.csd.Blocks(),
		"highCapacity", c.highCapacity,
		"busWidth", c.busWidth,
		"clockKHz", c.clockKHz)
	return nil
}

// powerUp polls ACMD41 until the card reports power-up complete.
func (c *Card) powerUp(ctx context.Context, arg uint32) error {
	for i := 0; i < c.initPolls; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ocr, err := c.appCommand(acmdSendOpCond, 0, host.ResponseFormatR3, arg)
		if err != nil {
			return fmt.Errorf("ACMD41: %w", err)
		}
		if ocr&ocrBusy != 0 {
			c.ocr = ocr
			c.highCapacity = ocr&ocrHCS != 0
			pkg.LogDebug(pkg.ComponentCard, "power-up complete",
				"unit", c.unit,
				"ocr", fmt.Sprintf("0x%08X", ocr),
				"polls", i+1)
			return nil
		}
		c.hw.Delay(pollDelayMs)
	}
	return fmt.Errorf("ACMD41 busy after %d polls: %w", c.initPolls, pkg.ErrTimeout)
}

// send issues one command with a 48-bit response and returns the response
// payload.
func (c *Card) send(cmd uint8, flags host.CmdFlags, format host.ResponseFormat, arg uint32) (uint32, error) {
	buf := c.resp[:host.ResponseLen48]
	c.hw.SendCmd(c.unit, cmd, flags, format, arg)
	if err := c.hw.GetResponse(c.unit, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[1:5]), nil
}

// command is send with retries.
func (c *Card) command(cmd uint8, flags host.CmdFlags, format host.ResponseFormat, arg uint32) (uint32, error) {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		var v uint32
		if v, err = c.send(cmd, flags, format, arg); err == nil {
			return v, nil
		}
		pkg.LogDebug(pkg.ComponentCard, "command failed",
			"unit", c.unit,
			"cmd", cmd,
			"attempt", attempt,
			"error", err)
	}
	return 0, fmt.Errorf("CMD%d: %w", cmd, err)
}

// appCommand sends CMD55 followed by application command acmd. The pair is
// retried as a whole.
func (c *Card) appCommand(acmd uint8, flags host.CmdFlags, format host.ResponseFormat, arg uint32) (uint32, error) {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		var st uint32
		if st, err = c.send(cmdAppCmd, 0, host.ResponseFormatR1, c.rcaArg()); err != nil {
			continue
		}
		if !Status(st).Has(StatusAppCmd) {
			err = fmt.Errorf("CMD55 status 0x%08X: %w", st, pkg.ErrCardState)
			continue
		}
		var v uint32
		if v, err = c.send(acmd, flags, format, arg); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("ACMD%d: %w", acmd, err)
}

// r1 sends a command with an R1 response and checks the card status.
func (c *Card) r1(cmd uint8, flags host.CmdFlags, arg uint32) (Status, error) {
	v, err := c.command(cmd, flags, host.ResponseFormatR1, arg)
	if err != nil {
		return 0, err
	}
	return c.checkStatus(cmd, Status(v))
}

// appR1 sends an application command with an R1 response.
func (c *Card) appR1(acmd uint8, arg uint32) (Status, error) {
	v, err := c.appCommand(acmd, 0, host.ResponseFormatR1, arg)
	if err != nil {
		return 0, err
	}
	return c.checkStatus(acmd, Status(v))
}

func (c *Card) checkStatus(cmd uint8, st Status) (Status, error) {
	if st.Has(deferredBits) {
		pkg.LogDebug(pkg.ComponentCard, "previous command flagged",
			"unit", c.unit,
			"cmd", cmd,
			"status", fmt.Sprintf("0x%08X", uint32(st)))
	}
	if err := st.Err(); err != nil {
		return st, fmt.Errorf("CMD%d: %w", cmd, err)
	}
	return st, nil
}

// register sends a command with a 136-bit response and returns the CID or
// CSD it carries. The CRC byte of the register is not transferred and reads
// as zero.
func (c *Card) register(cmd uint8, arg uint32) ([16]byte, error) {
	var reg [16]byte
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		c.hw.SendCmd(c.unit, cmd, 0, host.ResponseFormatR2, arg)
		if err = c.hw.GetResponse(c.unit, c.resp[:]); err == nil {
			copy(reg[:15], c.resp[1:16])
			return reg, nil
		}
	}
	return reg, fmt.Errorf("CMD%d: %w", cmd, err)
}

func (c *Card) rcaArg() uint32 {
	return uint32(c.rca) << 16
}

// Status reads the card status with CMD13.
func (c *Card) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return 0, pkg.ErrNotInitialized
	}
	v, err := c.command(cmdSendStatus, 0, host.ResponseFormatR1, c.rcaArg())
	return Status(v), err
}

// Unit returns the unit index of the card.
func (c *Card) Unit() uint8 { return c.unit }

// Ready reports whether Init completed.
func (c *Card) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// CSD returns the card-specific data read during Init.
func (c *Card) CSD() CSD {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csd
}

// CID returns the card identification read during Init.
func (c *Card) CID() CID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cid
}

// RCA returns the relative card address.
func (c *Card) RCA() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rca
}

// HighCapacity reports whether the card uses block addressing.
func (c *Card) HighCapacity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highCapacity
}

// BusWidth returns the data bus width in use.
func (c *Card) BusWidth() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busWidth
}

// ClockKHz returns the card clock configured after identification.
func (c *Card) ClockKHz() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clockKHz
}
