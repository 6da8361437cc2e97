package host

import (
	"fmt"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// isInitCommand reports whether the command is the CMD0 reset.
func isInitCommand(cmd uint8, flags CmdFlags) bool {
	return cmd == CmdGoIdleState || flags.Has(CmdFlagInitialize)
}

// buildCommand maps a command of the upstream driver onto the controller's
// command configuration. The data phase is attached separately.
//
// CRC and index checks follow the response format: no response checks
// nothing, R2 carries no command index, R3 carries neither index nor CRC.
func buildCommand(cmd uint8, flags CmdFlags, format ResponseFormat, arg uint32) hal.CommandConfig {
	cc := hal.CommandConfig{
		Index:            cmd,
		Argument:         arg,
		EnableCRCCheck:   !flags.Has(CmdFlagNoCRCCheck),
		EnableIndexCheck: true,
		Type:             hal.CommandNormal,
	}

	switch format {
	case ResponseFormatNone:
		cc.ResponseType = hal.ResponseNone
		cc.EnableIndexCheck = false
		cc.EnableCRCCheck = false
	case ResponseFormatR1:
		cc.ResponseType = hal.ResponseLen48
		if flags.Has(CmdFlagSetBusy) {
			cc.ResponseType = hal.ResponseLen48Busy
		}
	case ResponseFormatR2:
		cc.ResponseType = hal.ResponseLen136
		cc.EnableIndexCheck = false
	case ResponseFormatR3:
		cc.ResponseType = hal.ResponseLen48
		cc.EnableIndexCheck = false
		cc.EnableCRCCheck = false
	default:
		pkg.LogWarn(pkg.ComponentHost, "unknown response format, sending without response",
			"cmd", cmd,
			"format", format)
		cc.ResponseType = hal.ResponseNone
		cc.EnableIndexCheck = false
		cc.EnableCRCCheck = false
	}

	// Abort commands may be issued while a data transfer is in flight.
	if isInitCommand(cmd, flags) || cmd == CmdStopTransmission || flags.Has(CmdFlagStopTrans) {
		cc.Type = hal.CommandAbort
	}
	return cc
}

// SendCmd issues command cmd on unit.
//
// SendCmd reports nothing. A rejected command is recorded and surfaces as
// ResponseTimeout on the next GetResponse; the CMD and DAT lines are reset
// right away. For CMD0 the layer waits the minimum inter-command gap and
// resets the CMD line instead, and never records a status: CMD0 has no
// response to collect.
//
// A data command consumes the pointer, block length and block count set
// before it. Auto CMD12/CMD23 stays disabled because the upstream driver
// sends both itself.
func (h *CardMode) SendCmd(unit uint8, cmd uint8, flags CmdFlags, format ResponseFormat, arg uint32) {
	s := h.entry(unit)
	ctl := s.controller()
	if ctl == nil {
		pkg.LogWarn(pkg.ComponentHost, "command on unconfigured unit", "unit", unit, "cmd", cmd)
		s.sendStatus = pkg.ErrNotConfigured
		return
	}

	if flags&unsupportedFlags != 0 {
		pkg.LogDebug(pkg.ComponentHost, "ignoring unsupported command flags",
			"unit", unit,
			"cmd", cmd,
			"flags", flags&unsupportedFlags)
	}

	initCmd := isInitCommand(cmd, flags)
	cc := buildCommand(cmd, flags, format, arg)

	if err := h.prepareBus(unit, s, ctl, flags, &cc); err != nil {
		pkg.LogWarn(pkg.ComponentHost, "command not issued",
			"unit", unit,
			"cmd", cmd,
			"error", err)
		if !initCmd {
			s.sendStatus = err
		}
		h.resetLines(unit, ctl)
		return
	}

	h.clearStaleErrors(unit, ctl)
	err := ctl.SendCommand(&cc)

	if initCmd {
		h.timer.Sleep(NccMin)
		ctl.SoftwareReset(hal.ResetCmdLine)
		pkg.LogDebug(pkg.ComponentHost, "CMD0 sent, CMD line reset",
			"unit", unit,
			"error", err)
		return
	}

	s.sendStatus = err
	if err != nil {
		pkg.LogWarn(pkg.ComponentHost, "command rejected",
			"unit", unit,
			"cmd", cmd,
			"error", err)
		h.resetLines(unit, ctl)
		return
	}

	pkg.LogDebug(pkg.ComponentHost, "command sent",
		"unit", unit,
		"cmd", cmd,
		"arg", fmt.Sprintf("0x%08X", arg),
		"flags", flags,
		"format", format,
		"type", cc.Type)
}

// prepareBus configures the data phase and bus width a command needs before
// it is issued. Bus width changes complete before it returns.
func (h *CardMode) prepareBus(unit uint8, s *slot, ctl hal.Controller, flags CmdFlags, cc *hal.CommandConfig) error {
	if flags.Has(CmdFlagDataTransfer) {
		dc := &hal.DataConfig{
			Data:        s.data,
			BlockSize:   uint32(s.blockSize),
			NumBlocks:   uint32(s.numBlocks),
			AutoCommand: hal.AutoCommandNone,
			IsRead:      !flags.Has(CmdFlagWriteTransfer),
		}
		s.data, s.blockSize, s.numBlocks = nil, 0, 0

		if err := ctl.ConfigDataTransfer(dc); err != nil {
			return fmt.Errorf("configure data transfer: %w", err)
		}
		cc.Data = dc

		pkg.LogDebug(pkg.ComponentTransfer, "data transfer configured",
			"unit", unit,
			"read", dc.IsRead,
			"blockSize", dc.BlockSize,
			"numBlocks", dc.NumBlocks)
	}

	var width uint8
	switch {
	case flags.Has(CmdFlagUseSD4Mode):
		width = busWidth4
	case flags.Has(CmdFlagUseMMC8Mode):
		width = busWidth8
	default:
		return nil
	}
	if err := ctl.SetBusWidth(width, false); err != nil {
		return fmt.Errorf("set bus width %d: %w", width, err)
	}
	return nil
}
