package host

import (
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// =============================================================================
// Mock Controller for Testing
// =============================================================================

var errMock = errors.New("mock failure")

// mockController implements hal.Controller and records every call.
type mockController struct {
	calls []string

	initErr   error
	initCalls int
	busCfg    *hal.BusConfig

	busWidths   []uint8
	busWidthErr error
	voltages    []hal.IOVoltage
	powerOn     bool

	dataCfgs []*hal.DataConfig
	dataErr  error

	cmds    []hal.CommandConfig
	sendErr error

	// cmdFlags is latched into errFlags by SendCommand, dataFlags is or-ed
	// in by WaitTransferComplete.
	cmdFlags  hal.ErrorFlags
	dataFlags hal.ErrorFlags
	errFlags  hal.ErrorFlags
	waitErr   error

	words   [4]uint32
	large   []bool
	respErr error

	resets []hal.ResetLines
	clears int

	freq     uint32
	freqErr  error
	timeout  uint32
	tmoErr   error
	inserted bool
	wp       bool
}

func (m *mockController) record(name string) { m.calls = append(m.calls, name) }

func (m *mockController) Init(cfg *hal.BusConfig) error {
	m.record("Init")
	m.initCalls++
	m.busCfg = cfg
	return m.initErr
}

func (m *mockController) SoftwareReset(lines hal.ResetLines) {
	m.record("SoftwareReset")
	m.resets = append(m.resets, lines)
}

func (m *mockController) LastCommandErrors() hal.ErrorFlags {
	return m.errFlags
}

func (m *mockController) ClearErrors() {
	m.record("ClearErrors")
	m.clears++
	m.errFlags = hal.ErrNone
}

func (m *mockController) SetBusWidth(width uint8, configureCard bool) error {
	m.record("SetBusWidth")
	m.busWidths = append(m.busWidths, width)
	return m.busWidthErr
}

func (m *mockController) SetIOVoltage(v hal.IOVoltage, action hal.IOVoltageAction) error {
	m.record("SetIOVoltage")
	m.voltages = append(m.voltages, v)
	return nil
}

func (m *mockController) EnableCardPower(enable bool) {
	m.record("EnableCardPower")
	m.powerOn = enable
}

func (m *mockController) ConfigDataTransfer(cfg *hal.DataConfig) error {
	m.record("ConfigDataTransfer")
	m.dataCfgs = append(m.dataCfgs, cfg)
	return m.dataErr
}

func (m *mockController) SendCommand(cfg *hal.CommandConfig) error {
	m.record("SendCommand")
	m.cmds = append(m.cmds, *cfg)
	m.errFlags = m.cmdFlags
	return m.sendErr
}

func (m *mockController) Response(words *[4]uint32, large bool) error {
	m.record("Response")
	m.large = append(m.large, large)
	*words = m.words
	return m.respErr
}

func (m *mockController) WaitTransferComplete() error {
	m.record("WaitTransferComplete")
	m.errFlags |= m.dataFlags
	return m.waitErr
}

func (m *mockController) SetFrequency(hz uint32, negotiate bool) error {
	if m.freqErr != nil {
		return m.freqErr
	}
	// Coarse divider: round down to a multiple of 25 kHz.
	m.freq = hz - hz%25000
	return nil
}

func (m *mockController) Frequency() uint32 { return m.freq }

func (m *mockController) SetDataReadTimeout(cycles uint32, autoReconfigure bool) error {
	m.timeout = cycles
	return m.tmoErr
}

func (m *mockController) CardInserted() bool       { return m.inserted }
func (m *mockController) CardWriteProtected() bool { return m.wp }

func (m *mockController) lastCmd() hal.CommandConfig {
	return m.cmds[len(m.cmds)-1]
}

// fakeTimer records requested sleeps without blocking.
type fakeTimer struct {
	sleeps []time.Duration
}

func (f *fakeTimer) Sleep(d time.Duration) { f.sleeps = append(f.sleeps, d) }

func (f *fakeTimer) total() time.Duration {
	var sum time.Duration
	for _, d := range f.sleeps {
		sum += d
	}
	return sum
}

// newTestHost returns a host with unit 0 configured on a mock controller.
func newTestHost(t *testing.T) (*CardMode, *mockController, *fakeTimer) {
	t.Helper()
	timer := &fakeTimer{}
	h := New(timer)
	ctl := &mockController{inserted: true}
	if err := h.Configure(0, &Config{Controller: ctl}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	return h, ctl, timer
}

// =============================================================================
// Interface Tests
// =============================================================================

var _ HW = (*CardMode)(nil)
var _ hal.Controller = (*mockController)(nil)

func TestNew_DefaultTimer(t *testing.T) {
	h := New(nil)
	if _, ok := h.timer.(hal.SystemTimer); !ok {
		t.Errorf("timer = %T, want hal.SystemTimer", h.timer)
	}
	for unit := uint8(0); unit < NumUnits; unit++ {
		if h.Config(unit) != nil {
			t.Errorf("unit %d configured after New()", unit)
		}
		if h.State(unit) != UnitUninitialized {
			t.Errorf("unit %d state = %s", unit, h.State(unit))
		}
	}
}

func TestUnsupported(t *testing.T) {
	h := New(&fakeTimer{})

	if _, err := h.SetVoltage(0, 1700, 1950, true); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("SetVoltage() error = %v, want ErrNotSupported", err)
	}
	if _, err := h.GetVoltage(0); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("GetVoltage() error = %v", err)
	}
	if got := h.SetMaxClock(0, 50000, 0); got != 0 {
		t.Errorf("SetMaxClock() = %d, want 0", got)
	}
	if err := h.EnableTuning(0); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("EnableTuning() error = %v", err)
	}
	if err := h.StartTuning(0, 64); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("StartTuning() error = %v", err)
	}
	if err := h.DisableTuning(0, true); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("DisableTuning() error = %v", err)
	}
	if got := h.MaxTunings(0); got != 0 {
		t.Errorf("MaxTunings() = %d, want 0", got)
	}
}

// =============================================================================
// Configure Tests
// =============================================================================

func TestConfigure(t *testing.T) {
	h := New(&fakeTimer{})
	good := &Config{Controller: &mockController{}}

	if err := h.Configure(1, good); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if h.Config(1) != good {
		t.Error("Config() did not return the stored configuration")
	}

	tests := []struct {
		name string
		unit uint8
		cfg  *Config
		want error
	}{
		{"nil config", 1, nil, pkg.ErrBadParam},
		{"nil controller", 1, &Config{}, pkg.ErrBadParam},
		{"unit out of range", NumUnits, good, pkg.ErrInvalidUnit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.Configure(tt.unit, tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("Configure() error = %v, want %v", err, tt.want)
			}
			if h.Config(1) != good {
				t.Error("failed Configure() replaced the stored configuration")
			}
		})
	}
}

func TestUnitOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("IsPresent() with invalid unit did not panic")
		}
	}()
	New(&fakeTimer{}).IsPresent(NumUnits)
}

// =============================================================================
// Init Tests
// =============================================================================

func TestInit_NotConfigured(t *testing.T) {
	h := New(&fakeTimer{})
	if err := h.Init(2); !errors.Is(err, pkg.ErrNotConfigured) {
		t.Errorf("Init() error = %v, want ErrNotConfigured", err)
	}
}

func TestInit_Idempotent(t *testing.T) {
	h, ctl, timer := newTestHost(t)

	for i := 0; i < 3; i++ {
		if err := h.Init(0); err != nil {
			t.Fatalf("Init() #%d error = %v", i, err)
		}
	}

	if ctl.initCalls != 1 {
		t.Errorf("controller Init calls = %d, want 1", ctl.initCalls)
	}
	if ctl.busCfg != &h.Config(0).Bus {
		t.Error("controller Init did not receive the unit's bus configuration")
	}
	if len(ctl.busWidths) != 3 {
		t.Fatalf("SetBusWidth calls = %d, want 3", len(ctl.busWidths))
	}
	for _, w := range ctl.busWidths {
		if w != 1 {
			t.Errorf("bus width = %d, want 1", w)
		}
	}
	if timer.total() != 3*SupplyRampUp {
		t.Errorf("slept %v, want %v", timer.total(), 3*SupplyRampUp)
	}
	if h.State(0) != UnitReady {
		t.Errorf("state = %s, want Ready", h.State(0))
	}
	if len(ctl.voltages) != 0 || ctl.powerOn {
		t.Error("voltage or power touched without being enabled")
	}
}

func TestInit_VoltageAndPower(t *testing.T) {
	h := New(&fakeTimer{})
	ctl := &mockController{}
	cfg := &Config{Controller: ctl, IOVoltSelEnabled: true, CardPowerEnabled: true}
	if err := h.Configure(0, cfg); err != nil {
		t.Fatal(err)
	}

	if err := h.Init(0); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if len(ctl.voltages) != 1 || ctl.voltages[0] != hal.IOVoltage3V3 {
		t.Errorf("voltages = %v, want [3.3V]", ctl.voltages)
	}
	if !ctl.powerOn {
		t.Error("card power not enabled")
	}
}

func TestInit_BringUpFailureRetries(t *testing.T) {
	h, ctl, timer := newTestHost(t)
	ctl.initErr = errMock

	if err := h.Init(0); !errors.Is(err, errMock) {
		t.Fatalf("Init() error = %v, want %v", err, errMock)
	}
	if h.State(0) != UnitUninitialized {
		t.Errorf("state = %s, want Uninitialized", h.State(0))
	}
	if len(timer.sleeps) != 0 {
		t.Error("supply ramp delay applied after failed bring-up")
	}

	ctl.initErr = nil
	if err := h.Init(0); err != nil {
		t.Fatalf("Init() retry error = %v", err)
	}
	if ctl.initCalls != 2 || h.State(0) != UnitReady {
		t.Errorf("initCalls = %d state = %s, want 2 Ready", ctl.initCalls, h.State(0))
	}
}

// =============================================================================
// Presence / Clock Tests
// =============================================================================

func TestIsPresent(t *testing.T) {
	h, ctl, _ := newTestHost(t)

	if got := h.IsPresent(0); got != MediaIsPresent {
		t.Errorf("IsPresent() = %s, want present", got)
	}
	ctl.inserted = false
	if got := h.IsPresent(0); got != MediaNotPresent {
		t.Errorf("IsPresent() = %s, want not present", got)
	}
	if got := h.IsPresent(3); got != MediaStateUnknown {
		t.Errorf("IsPresent(unconfigured) = %s, want unknown", got)
	}
}

func TestIsWriteProtected(t *testing.T) {
	h, ctl, _ := newTestHost(t)

	if h.IsWriteProtected(0) {
		t.Error("IsWriteProtected() = true")
	}
	ctl.wp = true
	if !h.IsWriteProtected(0) {
		t.Error("IsWriteProtected() = false")
	}
	if h.IsWriteProtected(1) {
		t.Error("IsWriteProtected(unconfigured) = true")
	}
}

func TestSetMaxSpeed(t *testing.T) {
	h, ctl, _ := newTestHost(t)

	if got := h.SetMaxSpeed(0, InitClockKHz); got != InitClockKHz {
		t.Errorf("SetMaxSpeed(400) = %d, want 400", got)
	}
	if ctl.freq != 400000 {
		t.Errorf("frequency = %d Hz, want 400000", ctl.freq)
	}
	if got := h.SetMaxSpeed(0, 25010); got != 25000 {
		t.Errorf("SetMaxSpeed(25010) = %d, want 25000", got)
	}
	if got := h.SetMaxSpeed(0, 0); got != 0 {
		t.Errorf("SetMaxSpeed(0) = %d, want 0", got)
	}

	ctl.freqErr = errMock
	if got := h.SetMaxSpeed(0, 400); got != 0 {
		t.Errorf("SetMaxSpeed() on error = %d, want 0", got)
	}
	if got := h.SetMaxSpeed(1, 400); got != 0 {
		t.Errorf("SetMaxSpeed(unconfigured) = %d, want 0", got)
	}
}

func TestTimeouts(t *testing.T) {
	h, ctl, timer := newTestHost(t)

	h.SetResponseTimeout(0, 64)
	h.SetReadDataTimeout(0, 1<<20)
	if ctl.timeout != 1<<20 {
		t.Errorf("data timeout = %d, want %d", ctl.timeout, 1<<20)
	}

	ctl.tmoErr = errMock
	h.SetReadDataTimeout(0, 1<<30)
	h.SetReadDataTimeout(1, 100)

	h.Delay(12)
	if len(timer.sleeps) != 1 || timer.sleeps[0] != 12*time.Millisecond {
		t.Errorf("sleeps = %v, want [12ms]", timer.sleeps)
	}
}
