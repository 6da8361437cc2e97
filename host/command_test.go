package host

import (
	"errors"
	"slices"
	"testing"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// =============================================================================
// buildCommand Tests
// =============================================================================

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name   string
		cmd    uint8
		flags  CmdFlags
		format ResponseFormat
		resp   hal.ResponseType
		crc    bool
		index  bool
		typ    hal.CommandType
	}{
		{"CMD0", 0, CmdFlagInitialize, ResponseFormatNone, hal.ResponseNone, false, false, hal.CommandAbort},
		{"CMD2 R2", 2, 0, ResponseFormatR2, hal.ResponseLen136, true, false, hal.CommandNormal},
		{"CMD3 R6", 3, 0, ResponseFormatR6, hal.ResponseLen48, true, true, hal.CommandNormal},
		{"CMD7 busy", 7, CmdFlagSetBusy, ResponseFormatR1, hal.ResponseLen48Busy, true, true, hal.CommandNormal},
		{"ACMD41 R3", 41, 0, ResponseFormatR3, hal.ResponseLen48, false, false, hal.CommandNormal},
		{"CMD12", 12, CmdFlagSetBusy | CmdFlagStopTrans, ResponseFormatR1, hal.ResponseLen48Busy, true, true, hal.CommandAbort},
		{"no crc", 17, CmdFlagNoCRCCheck, ResponseFormatR1, hal.ResponseLen48, false, true, hal.CommandNormal},
		{"unknown format", 9, 0, ResponseFormat(8), hal.ResponseNone, false, false, hal.CommandNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := buildCommand(tt.cmd, tt.flags, tt.format, 0xAA55)
			if cc.Index != tt.cmd || cc.Argument != 0xAA55 {
				t.Errorf("index/arg = %d/0x%X", cc.Index, cc.Argument)
			}
			if cc.ResponseType != tt.resp {
				t.Errorf("ResponseType = %s, want %s", cc.ResponseType, tt.resp)
			}
			if cc.EnableCRCCheck != tt.crc {
				t.Errorf("EnableCRCCheck = %v, want %v", cc.EnableCRCCheck, tt.crc)
			}
			if cc.EnableIndexCheck != tt.index {
				t.Errorf("EnableIndexCheck = %v, want %v", cc.EnableIndexCheck, tt.index)
			}
			if cc.Type != tt.typ {
				t.Errorf("Type = %s, want %s", cc.Type, tt.typ)
			}
			if cc.Data != nil {
				t.Error("Data attached by buildCommand")
			}
		})
	}
}

// =============================================================================
// SendCmd Tests
// =============================================================================

func TestSendCmd_GoIdleState(t *testing.T) {
	h, ctl, timer := newTestHost(t)
	ctl.sendErr = errMock

	h.SendCmd(0, CmdGoIdleState, CmdFlagInitialize, ResponseFormatNone, 0)

	if len(ctl.cmds) != 1 || ctl.lastCmd().Type != hal.CommandAbort {
		t.Fatalf("cmds = %+v, want one abort command", ctl.cmds)
	}
	if len(timer.sleeps) != 1 || timer.sleeps[0] != NccMin {
		t.Errorf("sleeps = %v, want [%v]", timer.sleeps, NccMin)
	}
	if !slices.Equal(ctl.resets, []hal.ResetLines{hal.ResetCmdLine}) {
		t.Errorf("resets = %v, want [CMD line]", ctl.resets)
	}
	if h.entry(0).sendStatus != nil {
		t.Errorf("CMD0 recorded send status %v", h.entry(0).sendStatus)
	}
}

func TestSendCmd_Rejected(t *testing.T) {
	h, ctl, _ := newTestHost(t)
	ctl.sendErr = errMock

	h.SendCmd(0, 8, 0, ResponseFormatR7, 0x1AA)

	if !slices.Equal(ctl.resets, []hal.ResetLines{hal.ResetCmdDataLines}) {
		t.Errorf("resets = %v, want [CMD|DAT]", ctl.resets)
	}
	buf := make([]byte, ResponseLen48)
	if err := h.GetResponse(0, buf); err != ResponseTimeout {
		t.Errorf("GetResponse() = %v, want ResponseTimeout", err)
	}
	if slices.Contains(ctl.calls, "Response") {
		t.Error("response registers read after a rejected command")
	}

	// A later accepted command clears the status.
	ctl.sendErr = nil
	h.SendCmd(0, 8, 0, ResponseFormatR7, 0x1AA)
	if err := h.GetResponse(0, buf); err != nil {
		t.Errorf("GetResponse() after success = %v", err)
	}
}

func TestSendCmd_Unconfigured(t *testing.T) {
	h := New(&fakeTimer{})

	h.SendCmd(2, 55, 0, ResponseFormatR1, 0)

	err := h.GetResponse(2, make([]byte, ResponseLen48))
	if err != ResponseTimeout {
		t.Errorf("GetResponse() = %v, want ResponseTimeout", err)
	}
	if !errors.Is(h.entry(2).sendStatus, pkg.ErrNotConfigured) {
		t.Errorf("sendStatus = %v, want ErrNotConfigured", h.entry(2).sendStatus)
	}
}

func TestSendCmd_ReadSingleBlock(t *testing.T) {
	h, ctl, _ := newTestHost(t)
	buf := make([]byte, 512)

	h.SetDataPointer(0, buf)
	h.SetBlockLen(0, 512)
	h.SetNumBlocks(0, 1)
	h.SendCmd(0, 17, CmdFlagDataTransfer|CmdFlagUseSD4Mode, ResponseFormatR1, 100)

	if len(ctl.dataCfgs) != 1 {
		t.Fatalf("ConfigDataTransfer calls = %d, want 1", len(ctl.dataCfgs))
	}
	dc := ctl.dataCfgs[0]
	if &dc.Data[0] != &buf[0] || dc.BlockSize != 512 || dc.NumBlocks != 1 {
		t.Errorf("data config = %d x %d", dc.NumBlocks, dc.BlockSize)
	}
	if !dc.IsRead || dc.AutoCommand != hal.AutoCommandNone {
		t.Errorf("IsRead = %v AutoCommand = %v", dc.IsRead, dc.AutoCommand)
	}
	if !slices.Equal(ctl.busWidths, []uint8{4}) {
		t.Errorf("bus widths = %v, want [4]", ctl.busWidths)
	}

	cc := ctl.lastCmd()
	if cc.Data != dc || cc.Argument != 100 || cc.Type != hal.CommandNormal {
		t.Errorf("command = %+v", cc)
	}

	// Data setup precedes the command.
	want := []string{"ConfigDataTransfer", "SetBusWidth", "SendCommand"}
	if !slices.Equal(ctl.calls, want) {
		t.Errorf("calls = %v, want %v", ctl.calls, want)
	}

	// Pending parameters are consumed.
	s := h.entry(0)
	if s.data != nil || s.blockSize != 0 || s.numBlocks != 0 {
		t.Error("pending data parameters not cleared")
	}
}

func TestSendCmd_WriteMultipleBlock(t *testing.T) {
	h, ctl, _ := newTestHost(t)

	h.SetDataPointer(0, make([]byte, 4*512))
	h.SetBlockLen(0, 512)
	h.SetNumBlocks(0, 4)
	h.SendCmd(0, 25, CmdFlagDataTransfer|CmdFlagWriteTransfer|CmdFlagUseMMC8Mode, ResponseFormatR1, 0)

	dc := ctl.dataCfgs[0]
	if dc.IsRead || dc.NumBlocks != 4 || dc.Length() != 2048 {
		t.Errorf("data config = read %v, %d blocks, %d bytes", dc.IsRead, dc.NumBlocks, dc.Length())
	}
	if !slices.Equal(ctl.busWidths, []uint8{8}) {
		t.Errorf("bus widths = %v, want [8]", ctl.busWidths)
	}
}

func TestSendCmd_SetupFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mockController)
		flags CmdFlags
	}{
		{"data config", func(m *mockController) { m.dataErr = errMock }, CmdFlagDataTransfer},
		{"bus width", func(m *mockController) { m.busWidthErr = errMock }, CmdFlagUseSD4Mode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ctl, _ := newTestHost(t)
			tt.setup(ctl)

			h.SendCmd(0, 18, tt.flags, ResponseFormatR1, 0)

			if len(ctl.cmds) != 0 {
				t.Error("command issued after setup failure")
			}
			if !slices.Equal(ctl.resets, []hal.ResetLines{hal.ResetCmdDataLines}) {
				t.Errorf("resets = %v, want [CMD|DAT]", ctl.resets)
			}
			if !errors.Is(h.entry(0).sendStatus, errMock) {
				t.Errorf("sendStatus = %v, want %v", h.entry(0).sendStatus, errMock)
			}
		})
	}
}

func TestSendCmd_ClearsStaleErrors(t *testing.T) {
	h, ctl, _ := newTestHost(t)
	ctl.errFlags = hal.ErrDataCRC

	h.SendCmd(0, 13, 0, ResponseFormatR1, 0)

	want := []string{"SoftwareReset", "ClearErrors", "SendCommand"}
	if !slices.Equal(ctl.calls, want) {
		t.Errorf("calls = %v, want %v", ctl.calls, want)
	}
	if err := h.GetResponse(0, make([]byte, ResponseLen48)); err != nil {
		t.Errorf("GetResponse() = %v, stale flags leaked", err)
	}
}

func TestSendCmd_UnsupportedFlagsIgnored(t *testing.T) {
	h, ctl, _ := newTestHost(t)

	h.SendCmd(0, 11, CmdFlagSwitchVoltage, ResponseFormatR1, 0)

	if len(ctl.cmds) != 1 {
		t.Fatalf("cmds = %d, want 1", len(ctl.cmds))
	}
	if h.entry(0).sendStatus != nil {
		t.Errorf("sendStatus = %v", h.entry(0).sendStatus)
	}
}
