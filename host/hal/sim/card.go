package sim

import (
	"encoding/binary"

	"github.com/ardnew/softmmc/host"
	"github.com/ardnew/softmmc/pkg"
)

// cardState is the state of the simulated card (SD Physical Layer, Card
// States).
type cardState uint8

const (
	stateIdle cardState = iota
	stateReady
	stateIdent
	stateStby
	stateTran
	stateData
	stateRcv
	stateInactive
)

func (s cardState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateReady:
		return "ready"
	case stateIdent:
		return "ident"
	case stateStby:
		return "stby"
	case stateTran:
		return "tran"
	case stateData:
		return "data"
	case stateRcv:
		return "rcv"
	default:
		return "ina"
	}
}

// Card status bits returned in R1.
const (
	statusOutOfRange   uint32 = 1 << 31
	statusAddressError uint32 = 1 << 30
	statusWPViolation  uint32 = 1 << 26
	statusIllegalCmd   uint32 = 1 << 22
	statusReadyForData uint32 = 1 << 8
	statusAppCmd       uint32 = 1 << 5
	statusStateShift          = 9
)

// OCR bits.
const (
	ocrVoltageWindow uint32 = 0x00FF8000 // 2.7-3.6 V
	ocrCCS           uint32 = 1 << 30
	ocrPowerUp       uint32 = 1 << 31
)

// Default identity of the simulated card.
const (
	defaultRCA       = 0xB368
	defaultSerial    = 0x1EE7C0DE
	defaultMID       = 0x1B
	defaultOID       = "SM"
	defaultPNM       = "SMSIM"
	blockSize        = 512
	tranSpeed25MHz   = 0x32
	voltageCheckMask = 0xFFF
)

// transfer is a data phase the card has accepted.
type transfer struct {
	lba   uint32
	write bool
	multi bool
}

// reply is the card's answer to one command.
type reply struct {
	silent bool      // no response on the CMD line
	words  [4]uint32 // response register contents
	xfer   *transfer
}

// card models the protocol side of an SD memory card.
type card struct {
	state    cardState
	app      bool
	rca      uint16
	ocr      uint32
	status   uint32
	busWidth uint8
	highCap  bool
	wp       bool
	blocks   uint32
	polls    int // busy ACMD41 replies left
	maxPolls int

	cid [16]byte
	csd [16]byte

	// Sparse block storage; unwritten blocks read as zero.
	data map[uint32][]byte
}

func newCard(blocks uint32, highCap bool, serial uint32) *card {
	c := &card{
		highCap:  highCap,
		blocks:   blocks,
		maxPolls: 2,
		busWidth: 1,
		data:     make(map[uint32][]byte),
	}
	c.cid = buildCID(serial)
	c.csd = buildCSD(blocks, highCap)
	c.reset()
	return c
}

// reset returns the card to the idle state, as after CMD0 or power up.
func (c *card) reset() {
	c.state = stateIdle
	c.app = false
	c.rca = 0
	c.ocr = ocrVoltageWindow
	c.status = 0
	c.busWidth = 1
	c.polls = c.maxPolls
}

// r1 builds an R1 response from the accumulated status and clears the
// clear-on-read bits.
func (c *card) r1() reply {
	st := c.status | uint32(c.state)<<statusStateShift
	if c.app {
		st |= statusAppCmd
	}
	if c.state == stateTran {
		st |= statusReadyForData
	}
	c.status = 0
	return reply{words: [4]uint32{st}}
}

func (c *card) illegal() reply {
	c.status |= statusIllegalCmd
	return reply{silent: true}
}

// command executes one command and advances the card state.
func (c *card) command(index uint8, arg uint32) reply {
	app := c.app
	c.app = false

	if c.state == stateInactive {
		return reply{silent: true}
	}
	if app {
		if r, ok := c.appCommand(index, arg); ok {
			return r
		}
	}

	switch index {
	case 0: // GO_IDLE_STATE
		c.reset()
		return reply{silent: true}

	case 2: // ALL_SEND_CID
		if c.state != stateReady {
			return c.illegal()
		}
		c.state = stateIdent
		return reply{words: registerWords(c.cid)}

	case 3: // SEND_RELATIVE_ADDR
		if c.state != stateIdent && c.state != stateStby {
			return c.illegal()
		}
		c.state = stateStby
		c.rca = defaultRCA
		// R6 carries status bits 23, 22, 19 and 12:0.
		st := uint32(c.state) << statusStateShift
		return reply{words: [4]uint32{uint32(c.rca)<<16 | st&0x1FFF}}

	case 7: // SELECT/DESELECT_CARD
		rca := uint16(arg >> 16)
		switch {
		case rca == c.rca && c.state == stateStby:
			c.state = stateTran
		case rca != c.rca && (c.state == stateTran || c.state == stateData):
			c.state = stateStby
			return reply{silent: true}
		case rca == c.rca && c.state == stateTran:
		default:
			return c.illegal()
		}
		return c.r1()

	case 8: // SEND_IF_COND
		if c.state != stateIdle {
			return c.illegal()
		}
		return reply{words: [4]uint32{arg & voltageCheckMask}}

	case 9, 10: // SEND_CSD, SEND_CID
		if c.state != stateStby || uint16(arg>>16) != c.rca {
			return c.illegal()
		}
		if index == 9 {
			return reply{words: registerWords(c.csd)}
		}
		return reply{words: registerWords(c.cid)}

	case 12: // STOP_TRANSMISSION
		if c.state != stateData && c.state != stateRcv {
			return c.illegal()
		}
		c.state = stateTran
		return c.r1()

	case 13: // SEND_STATUS
		if uint16(arg>>16) != c.rca {
			return reply{silent: true}
		}
		return c.r1()

	case 15: // GO_INACTIVE_STATE
		c.state = stateInactive
		return reply{silent: true}

	case 16: // SET_BLOCKLEN
		if c.state != stateTran {
			return c.illegal()
		}
		if arg != blockSize {
			c.status |= statusOutOfRange
		}
		return c.r1()

	case 17, 18, 24, 25: // READ/WRITE_SINGLE/MULTIPLE_BLOCK
		if c.state != stateTran {
			return c.illegal()
		}
		write := index >= 24
		lba := arg
		if !c.highCap {
			if arg%blockSize != 0 {
				c.status |= statusAddressError
				return c.r1()
			}
			lba = arg / blockSize
		}
		if lba >= c.blocks {
			c.status |= statusOutOfRange
			return c.r1()
		}
		if write && c.wp {
			c.status |= statusWPViolation
			return c.r1()
		}
		r := c.r1()
		c.state = stateData
		if write {
			c.state = stateRcv
		}
		r.xfer = &transfer{lba: lba, write: write, multi: index == 18 || index == 25}
		return r

	case 55: // APP_CMD
		if c.rca != 0 && uint16(arg>>16) != c.rca {
			return c.illegal()
		}
		c.app = true
		return c.r1()
	}

	return c.illegal()
}

// appCommand executes the application-specific command index. ok is false
// if index is not an application command, in which case it runs as a
// regular command.
func (c *card) appCommand(index uint8, arg uint32) (r reply, ok bool) {
	switch index {
	case 6: // SET_BUS_WIDTH
		if c.state != stateTran {
			return c.illegal(), true
		}
		switch arg & 0x3 {
		case 0:
			c.busWidth = 1
		case 2:
			c.busWidth = 4
		default:
			c.status |= statusOutOfRange
		}
		c.app = true
		r = c.r1()
		c.app = false
		return r, true

	case 41: // SD_SEND_OP_COND
		if c.state != stateIdle {
			return c.illegal(), true
		}
		if arg&ocrVoltageWindow == 0 {
			return reply{words: [4]uint32{c.ocr}}, true
		}
		if c.polls > 0 {
			c.polls--
			return reply{words: [4]uint32{c.ocr}}, true
		}
		c.ocr |= ocrPowerUp
		if c.highCap && arg&ocrCCS != 0 {
			c.ocr |= ocrCCS
		}
		c.state = stateReady
		return reply{words: [4]uint32{c.ocr}}, true
	}
	return reply{}, false
}

// readBlock copies block lba into dst.
func (c *card) readBlock(lba uint32, dst []byte) {
	if b, ok := c.data[lba]; ok {
		copy(dst, b)
		return
	}
	clear(dst[:blockSize])
}

// writeBlock stores src as block lba.
func (c *card) writeBlock(lba uint32, src []byte) {
	b, ok := c.data[lba]
	if !ok {
		b = make([]byte, blockSize)
		c.data[lba] = b
	}
	copy(b, src[:blockSize])
}

// registerWords lays a 128-bit card register out the way the controller
// presents a 136-bit response: bits [127:8] with the CRC byte stripped.
func registerWords(reg [16]byte) [4]uint32 {
	buf := make([]byte, host.ResponseLen136)
	copy(buf[1:16], reg[:15])
	var w [4]uint32
	copy(w[:], host.ResponseWords(buf))
	return w
}

// setBits stores v in register bits [msb:msb-width+1], bit 0 being the LSB
// of reg[15].
func setBits(reg *[16]byte, msb, width int, v uint32) {
	for i := 0; i < width; i++ {
		bit := msb - width + 1 + i
		idx := 15 - bit/8
		mask := byte(1) << (bit % 8)
		if v&(1<<i) != 0 {
			reg[idx] |= mask
		} else {
			reg[idx] &^= mask
		}
	}
}

func buildCID(serial uint32) [16]byte {
	var cid [16]byte
	cid[0] = defaultMID
	copy(cid[1:3], defaultOID)
	copy(cid[3:8], defaultPNM)
	cid[8] = 0x10 // PRV 1.0
	binary.BigEndian.PutUint32(cid[9:13], serial)
	setBits(&cid, 19, 8, 25) // MDT year 2025
	setBits(&cid, 11, 4, 10) // MDT month
	cid[15] = 0x01
	return cid
}

func buildCSD(blocks uint32, highCap bool) [16]byte {
	var csd [16]byte
	setBits(&csd, 119, 8, 0x0E) // TAAC
	setBits(&csd, 103, 8, tranSpeed25MHz)
	setBits(&csd, 95, 12, 0x5B5) // CCC
	setBits(&csd, 83, 4, 9)      // READ_BL_LEN
	setBits(&csd, 25, 4, 9)      // WRITE_BL_LEN
	setBits(&csd, 46, 1, 1)      // ERASE_BLK_EN
	setBits(&csd, 45, 7, 0x7F)   // SECTOR_SIZE
	setBits(&csd, 28, 3, 2)      // R2W_FACTOR
	csd[15] = 0x01

	if highCap {
		setBits(&csd, 127, 2, 1)
		setBits(&csd, 69, 22, blocks/1024-1)
		return csd
	}
	// blocks = (C_SIZE+1) * 2^(C_SIZE_MULT+2) with C_SIZE_MULT = 7.
	setBits(&csd, 73, 12, blocks/512-1)
	setBits(&csd, 49, 3, 7)
	setBits(&csd, 111, 8, 0x5A) // NSAC
	return csd
}

// roundCapacity rounds blocks up to the granularity the CSD can express.
func roundCapacity(blocks uint32, highCap bool) (uint32, error) {
	unit, limit := uint32(512), uint32(4096*512)
	if highCap {
		unit, limit = 1024, 1<<22*1024-1024
	}
	if blocks == 0 || blocks > limit {
		return 0, pkg.ErrInvalidParameter
	}
	return (blocks + unit - 1) / unit * unit, nil
}
