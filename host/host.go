package host

import (
	"fmt"
	"time"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// Config is the caller-owned configuration of one unit. The layer keeps a
// reference to it and never copies or frees it.
type Config struct {
	// Controller is the host-controller peripheral wired to the slot.
	Controller hal.Controller

	// Bus carries the pin routing and bus limits for the one-time bring-up.
	Bus hal.BusConfig

	// IOVoltSelEnabled selects 3.3 V signaling on every Init.
	IOVoltSelEnabled bool

	// CardPowerEnabled drives the card power-enable pin on every Init.
	CardPowerEnabled bool
}

// slot is the per-unit state of the layer.
type slot struct {
	state  UnitState
	config *Config

	// sendStatus is the controller's verdict on the last issued command.
	// CMD0 never updates it.
	sendStatus error

	// Pending data-transfer parameters, consumed by the next data command.
	data      []byte
	blockSize uint16
	numBlocks uint16
}

func (s *slot) controller() hal.Controller {
	if s.config == nil {
		return nil
	}
	return s.config.Controller
}

// CardMode adapts hal.Controller peripherals to the HW callback table of a
// card-mode SD/MMC driver.
//
// CardMode performs no locking. Each unit is a strictly serial resource:
// callers issue configure, send, response and data calls for one unit in
// sequence from one goroutine, or guard the unit with their own mutex.
type CardMode struct {
	Unsupported

	units [NumUnits]slot
	timer hal.Timer
}

// New creates a card-mode layer with every unit unconfigured. A nil timer
// selects hal.SystemTimer.
func New(timer hal.Timer) *CardMode {
	if timer == nil {
		timer = hal.SystemTimer{}
	}
	return &CardMode{timer: timer}
}

// entry returns the state of unit. An out-of-range unit is a programming
// error of the caller.
func (h *CardMode) entry(unit uint8) *slot {
	if int(unit) >= NumUnits {
		panic(fmt.Sprintf("host: unit %d out of range (max %d)", unit, NumUnits-1))
	}
	return &h.units[unit]
}

// Configure attaches cfg to unit. It performs no hardware access; the
// controller is brought up by the first Init.
//
// Returns pkg.ErrBadParam if cfg or its controller is nil, and
// pkg.ErrInvalidUnit if unit is out of range. On error the previously
// stored configuration is kept.
func (h *CardMode) Configure(unit uint8, cfg *Config) error {
	if int(unit) >= NumUnits {
		return fmt.Errorf("configure unit %d: %w", unit, pkg.ErrInvalidUnit)
	}
	if cfg == nil || cfg.Controller == nil {
		return fmt.Errorf("configure unit %d: %w", unit, pkg.ErrBadParam)
	}
	h.units[unit].config = cfg
	pkg.LogDebug(pkg.ComponentHost, "unit configured", "unit", unit)
	return nil
}

// Config returns the configuration attached to unit, or nil.
func (h *CardMode) Config(unit uint8) *Config {
	return h.entry(unit).config
}

// State returns the bring-up state of unit.
func (h *CardMode) State(unit uint8) UnitState {
	return h.entry(unit).state
}

// Init brings unit to a known state.
//
// The controller bring-up runs once per unit; a failed bring-up leaves the
// unit Uninitialized so the next call retries it. Bus width (1 bit), signaling
// voltage and card power are reset on every call, followed by the supply ramp
// delay.
func (h *CardMode) Init(unit uint8) error {
	s := h.entry(unit)
	ctl := s.controller()
	if ctl == nil {
		return fmt.Errorf("init unit %d: %w", unit, pkg.ErrNotConfigured)
	}

	pkg.LogDebug(pkg.ComponentHost, "init", "unit", unit, "state", s.state)

	if s.state == UnitUninitialized {
		s.state = UnitInitializing
		if err := ctl.Init(&s.config.Bus); err != nil {
			s.state = UnitUninitialized
			pkg.LogError(pkg.ComponentHost, "controller bring-up failed",
				"unit", unit,
				"error", err)
			return fmt.Errorf("init unit %d: %w", unit, err)
		}
		s.state = UnitReady
		pkg.LogInfo(pkg.ComponentHost, "controller ready", "unit", unit)
	}

	if err := ctl.SetBusWidth(busWidth1, false); err != nil {
		return fmt.Errorf("init unit %d: set bus width: %w", unit, err)
	}
	if s.config.IOVoltSelEnabled {
		if err := ctl.SetIOVoltage(hal.IOVoltage3V3, hal.IOVoltageActionNone); err != nil {
			return fmt.Errorf("init unit %d: set io voltage: %w", unit, err)
		}
	}
	if s.config.CardPowerEnabled {
		ctl.EnableCardPower(true)
	}

	// Stable supply and clock.
	h.timer.Sleep(SupplyRampUp)
	return nil
}

// Delay blocks for ms milliseconds.
func (h *CardMode) Delay(ms int) {
	h.timer.Sleep(time.Duration(ms) * time.Millisecond)
}

// IsPresent reports the card-detect state of unit. An unconfigured unit
// reports MediaStateUnknown so the upstream driver probes the card itself.
func (h *CardMode) IsPresent(unit uint8) MediaState {
	ctl := h.entry(unit).controller()
	if ctl == nil {
		return MediaStateUnknown
	}
	if ctl.CardInserted() {
		return MediaIsPresent
	}
	return MediaNotPresent
}

// IsWriteProtected reports the mechanical write-protect switch of unit.
func (h *CardMode) IsWriteProtected(unit uint8) bool {
	ctl := h.entry(unit).controller()
	return ctl != nil && ctl.CardWriteProtected()
}

// SetMaxSpeed programs a card clock of at most khz and returns the clock
// actually configured in kHz, or 0 on error.
//
// The upstream driver calls it twice: with at most 400 kHz for
// identification, then with the rate decoded from the CSD.
func (h *CardMode) SetMaxSpeed(unit uint8, khz uint16) uint16 {
	ctl := h.entry(unit).controller()
	if ctl == nil || khz == 0 {
		return 0
	}
	if err := ctl.SetFrequency(uint32(khz)*1000, false); err != nil {
		pkg.LogWarn(pkg.ComponentHost, "set frequency failed",
			"unit", unit,
			"khz", khz,
			"error", err)
		return 0
	}
	actual := ctl.Frequency() / 1000
	pkg.LogDebug(pkg.ComponentHost, "clock configured",
		"unit", unit,
		"requestedKHz", khz,
		"actualKHz", actual)
	return uint16(actual)
}

// SetResponseTimeout is accepted and ignored: the controller applies its own
// fixed command timeout.
func (h *CardMode) SetResponseTimeout(unit uint8, cycles uint32) {
	_ = h.entry(unit)
	_ = cycles
}

// SetReadDataTimeout programs the controller's data timeout. A controller
// that cannot reach cycles logs a warning; raise the upstream read timeout
// in that case.
func (h *CardMode) SetReadDataTimeout(unit uint8, cycles uint32) {
	ctl := h.entry(unit).controller()
	if ctl == nil {
		return
	}
	if err := ctl.SetDataReadTimeout(cycles, false); err != nil {
		pkg.LogWarn(pkg.ComponentHost, "set data timeout failed",
			"unit", unit,
			"cycles", cycles,
			"error", err)
	}
}

// resetLines issues a software reset of the CMD and DAT lines and clears
// the error status. It is safe to call without a pending error.
func (h *CardMode) resetLines(unit uint8, ctl hal.Controller) {
	ctl.SoftwareReset(hal.ResetCmdDataLines)
	ctl.ClearErrors()
	pkg.LogWarn(pkg.ComponentHost, "software reset of CMD and DAT lines", "unit", unit)
}

// clearStaleErrors resets the lines if the previous transaction left error
// flags behind.
func (h *CardMode) clearStaleErrors(unit uint8, ctl hal.Controller) {
	if ctl.LastCommandErrors() != hal.ErrNone {
		h.resetLines(unit, ctl)
	}
}
