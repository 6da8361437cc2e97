package card

import (
	"fmt"

	"github.com/ardnew/softmmc/host"
	"github.com/ardnew/softmmc/pkg"
)

// BlockSize returns the transfer block size in bytes.
func (c *Card) BlockSize() uint32 {
	return blockSize
}

// BlockCount returns the card capacity in blocks, or 0 before Init.
func (c *Card) BlockCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return 0
	}
	return c.csd.Blocks()
}

// Read reads blocks starting at lba into buf and returns the number of
// blocks read.
//
// Transfers longer than the unit's read burst limit are split. A failed data
// phase is not retried: the error carries the [host.CardError] and the LBA of
// the failed chunk.
func (c *Card) Read(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfer(lba, blocks, buf, false)
}

// Write writes blocks from buf starting at lba and returns the number of
// blocks written. See Read for splitting and error reporting.
func (c *Card) Write(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hw.IsWriteProtected(c.unit) {
		return 0, fmt.Errorf("write lba %d: %w", lba, pkg.ErrWriteProtected)
	}
	return c.transfer(lba, blocks, buf, true)
}

func (c *Card) transfer(lba uint64, blocks uint32, buf []byte, write bool) (uint32, error) {
	op := "read"
	if write {
		op = "write"
	}
	if !c.ready {
		return 0, fmt.Errorf("%s: %w", op, pkg.ErrNotInitialized)
	}
	if lba+uint64(blocks) > c.csd.Blocks() {
		return 0, fmt.Errorf("%s lba %d+%d: %w", op, lba, blocks, pkg.ErrOutOfRange)
	}
	if uint64(len(buf)) < uint64(blocks)*blockSize {
		return 0, fmt.Errorf("%s %d blocks into %d bytes: %w", op, blocks, len(buf), pkg.ErrBufferTooSmall)
	}

	burst := uint32(c.hw.MaxReadBurst(c.unit))
	if write {
		burst = uint32(c.hw.MaxWriteBurst(c.unit))
	}
	if burst == 0 {
		burst = 1
	}

	var done uint32
	for done < blocks {
		n := min(blocks-done, burst)
		chunk := buf[uint64(done)*blockSize : uint64(done+n)*blockSize]
		if err := c.chunk(lba+uint64(done), n, chunk, write); err != nil {
			return done, fmt.Errorf("%s lba %d: %w", op, lba+uint64(done), err)
		}
		done += n
	}
	return done, nil
}

// chunk moves one burst of n blocks. Multi-block bursts are closed with
// CMD12 whether or not the data phase succeeded.
func (c *Card) chunk(lba uint64, n uint32, buf []byte, write bool) error {
	cmd := uint8(cmdReadSingle)
	flags := host.CmdFlagDataTransfer
	switch {
	case write && n > 1:
		cmd = cmdWriteMultiple
	case write:
		cmd = cmdWriteSingle
	case n > 1:
		cmd = cmdReadMultiple
	}
	if write {
		flags |= host.CmdFlagWriteTransfer
	}
	if c.busWidth == 4 {
		flags |= host.CmdFlagUseSD4Mode
	}

	arg := uint32(lba)
	if !c.highCapacity {
		arg = uint32(lba * blockSize)
	}

	// The data parameters are consumed by each send, so the whole setup is
	// repeated on a retry.
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		c.hw.SetDataPointer(c.unit, buf)
		c.hw.SetBlockLen(c.unit, blockSize)
		c.hw.SetNumBlocks(c.unit, uint16(n))
		var st uint32
		if st, err = c.send(cmd, flags, host.ResponseFormatR1, arg); err == nil {
			_, err = c.checkStatus(cmd, Status(st))
			break
		}
	}
	if err != nil {
		return err
	}

	if write {
		err = c.hw.WriteData(c.unit, buf, blockSize, int(n))
	} else {
		err = c.hw.ReadData(c.unit, buf, blockSize, int(n))
	}

	if n > 1 {
		if _, serr := c.r1(cmdStopTransmission, host.CmdFlagStopTrans|host.CmdFlagSetBusy, 0); serr != nil && err == nil {
			err = serr
		}
	}
	if err != nil {
		return err
	}

	if write {
		return c.waitProgrammed()
	}
	return nil
}

// waitProgrammed polls CMD13 until the card has left the programming state.
func (c *Card) waitProgrammed() error {
	for i := 0; i < c.initPolls; i++ {
		v, err := c.command(cmdSendStatus, 0, host.ResponseFormatR1, c.rcaArg())
		if err != nil {
			return err
		}
		st := Status(v)
		if st.Has(StatusReadyForData) && st.State() == StateTran {
			_, err = c.checkStatus(cmdSendStatus, st)
			return err
		}
		c.hw.Delay(pollDelayMs)
	}
	return fmt.Errorf("card busy after write: %w", pkg.ErrTimeout)
}

// Sync returns nil: writes complete before Write returns.
func (c *Card) Sync() error {
	return nil
}

// IsReadOnly reports the write-protect switch of the slot.
func (c *Card) IsReadOnly() bool {
	return c.hw.IsWriteProtected(c.unit)
}

// IsRemovable returns true.
func (c *Card) IsRemovable() bool {
	return true
}

// IsPresent reports whether a card is in the slot. An unknown state counts
// as present.
func (c *Card) IsPresent() bool {
	return c.hw.IsPresent(c.unit) != host.MediaNotPresent
}

// Eject deselects the card. It must be initialized again before further
// IO.
func (c *Card) Eject() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return nil
	}
	c.ready = false
	// The deselected card does not respond.
	c.hw.SendCmd(c.unit, cmdSelectCard, 0, host.ResponseFormatNone, 0)
	pkg.LogInfo(pkg.ComponentCard, "card ejected", "unit", c.unit)
	return nil
}
