package host

import (
	"log/slog"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// GetResponse stores the response of the last command sent on unit in buf.
//
// len(buf) selects the response length: ResponseLen48 for 48-bit responses,
// up to ResponseLen136 for 136-bit responses. See PutResponse for the byte
// layout. If the controller rejected the last command the result is
// ResponseTimeout and the response registers are not read.
func (h *CardMode) GetResponse(unit uint8, buf []byte) error {
	s := h.entry(unit)
	if s.sendStatus != nil {
		return ResponseTimeout
	}
	ctl := s.controller()
	if ctl == nil {
		return ResponseGenericError
	}
	if len(buf) < ResponseLen48 || len(buf) > ResponseLen136 {
		pkg.LogWarn(pkg.ComponentCodec, "response buffer size out of range",
			"unit", unit,
			"size", len(buf))
		return ResponseGenericError
	}

	flags := ctl.LastCommandErrors()
	if res := Classify(flags, ContextResponse); res != NoError {
		pkg.LogWarn(pkg.ComponentCodec, "response failed",
			"unit", unit,
			"flags", flags,
			"result", res)
		h.resetLines(unit, ctl)
		return res
	}

	var words [4]uint32
	if err := ctl.Response(&words, len(buf) > ResponseLen48); err != nil {
		pkg.LogWarn(pkg.ComponentCodec, "response read failed",
			"unit", unit,
			"error", err)
		h.resetLines(unit, ctl)
		return ResponseGenericError
	}
	PutResponse(buf, words[:])

	if pkg.LogEnabled(slog.LevelDebug) {
		pkg.LogDebug(pkg.ComponentCodec, "response",
			"unit", unit,
			"bytes", buf)
	}
	return nil
}

// ReadData waits for the data phase of the last read command on unit.
//
// The data lands in the buffer given to SetDataPointer before the command;
// buf, blockSize and numBlocks must describe that same transfer. Transfers
// are not chunked or retried here.
func (h *CardMode) ReadData(unit uint8, buf []byte, blockSize, numBlocks int) error {
	return h.waitData(unit, ContextReadData, blockSize, numBlocks).Err()
}

// WriteData waits for the data phase of the last write command on unit.
// See ReadData for the buffer contract.
func (h *CardMode) WriteData(unit uint8, buf []byte, blockSize, numBlocks int) error {
	return h.waitData(unit, ContextWriteData, blockSize, numBlocks).Err()
}

// waitData blocks until the controller finishes the current transfer and
// classifies the outcome. Failures reset the CMD and DAT lines.
func (h *CardMode) waitData(unit uint8, ctx ErrorContext, blockSize, numBlocks int) CardError {
	s := h.entry(unit)
	ctl := s.controller()
	if ctl == nil {
		return Classify(hal.ErrResponse, ctx)
	}

	var res CardError
	if err := ctl.WaitTransferComplete(); err != nil {
		// The upstream driver has no write timeout code.
		res = ResponseTimeout
		if ctx == ContextReadData {
			res = ReadTimeout
		}
		pkg.LogWarn(pkg.ComponentTransfer, "transfer wait failed",
			"unit", unit,
			"dir", ctx,
			"error", err)
	} else {
		res = Classify(ctl.LastCommandErrors(), ctx)
	}

	if res != NoError {
		pkg.LogWarn(pkg.ComponentTransfer, "transfer failed",
			"unit", unit,
			"dir", ctx,
			"blockSize", blockSize,
			"numBlocks", numBlocks,
			"result", res)
		h.resetLines(unit, ctl)
		return res
	}

	pkg.LogDebug(pkg.ComponentTransfer, "transfer complete",
		"unit", unit,
		"dir", ctx,
		"bytes", blockSize*numBlocks)
	return NoError
}

// SetDataPointer sets the buffer of the next data command on unit.
func (h *CardMode) SetDataPointer(unit uint8, p []byte) {
	h.entry(unit).data = p
}

// SetBlockLen sets the block size of the next data command on unit.
func (h *CardMode) SetBlockLen(unit uint8, blockSize uint16) {
	h.entry(unit).blockSize = blockSize
}

// SetNumBlocks sets the block count of the next data command on unit.
func (h *CardMode) SetNumBlocks(unit uint8, numBlocks uint16) {
	h.entry(unit).numBlocks = numBlocks
}

// MaxReadBurst returns the block limit of one multi-block read. The
// controller counts blocks in 32 bits; the callback is limited to 16.
func (h *CardMode) MaxReadBurst(unit uint8) uint16 {
	_ = h.entry(unit)
	return MaxBurstBlocks
}

// MaxWriteBurst returns the block limit of one multi-block write.
func (h *CardMode) MaxWriteBurst(unit uint8) uint16 {
	_ = h.entry(unit)
	return MaxBurstBlocks
}

// MaxWriteBurstRepeat returns 0: repeat writes are not supported.
func (h *CardMode) MaxWriteBurstRepeat(unit uint8) uint16 {
	_ = h.entry(unit)
	return BurstUnsupported
}

// MaxWriteBurstFill returns 0: fill writes are not supported.
func (h *CardMode) MaxWriteBurstFill(unit uint8) uint16 {
	_ = h.entry(unit)
	return BurstUnsupported
}
