package bme680

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Opts struct {
	// AmbientTemperature (°C) is used to compute the heater resistance code.
	AmbientTemperature float64
	// PollAttempts bounds the status polls after the conversion delay.
	PollAttempts int
	// PollInterval is the pause between two status polls.
	PollInterval time.Duration
	// ResetDelay is the wait after a soft reset.
	ResetDelay  time.Duration
	Compensator CompensatorFactory
	Logger      *slog.Logger
}

type Opt func(*Opts)

func WithAmbientTemperature(celsius float64) Opt {
	return func(o *Opts) {
		o.AmbientTemperature = celsius
	}
}

func WithPollAttempts(n int) Opt {
	return func(o *Opts) {
		o.PollAttempts = n
	}
}

func WithPollInterval(d time.Duration) Opt {
	return func(o *Opts) {
		o.PollInterval = d
	}
}

func WithCompensator(f CompensatorFactory) Opt {
	return func(o *Opts) {
		o.Compensator = f
	}
}

func WithLogger(l *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = l
	}
}

// Sensor is a session with one Bosch BME680/BME688 chip.
// Typical usage:
//
//	s := New(opener)
//	err := s.Open(ctx, AddressLow)
//	err = s.Configure(ctx, SamplingConfig{Temperature: Oversampling2x, Pressure: Oversampling4x, Humidity: Oversampling1x, Filter: Filter3})
//	err = s.ConfigureHeater(ctx, HeaterConfig{Temperature: 320, Duration: 150 * time.Millisecond})
//	r, err := s.Measure(ctx)
//	_ = s.Close()
//
// All methods are safe for concurrent use; calls are serialised for the whole
// duration of the bus exchange, including the conversion wait.
type Sensor struct {
	mx     sync.Mutex
	opener Opener
	config Opts
	log    *slog.Logger

	transport Transport
	addr      byte
	variant   Variant
	comp      Compensator
	mode      Mode
	state     State
	sampling  *SamplingConfig
	heater    *HeaterConfig
	// resync is set when a sampling write failed half way and the device
	// registers may differ from sampling.
	resync bool
	// heaterResync is the same for the heater registers and heater.
	heaterResync bool
}

func New(opener Opener, opts ...Opt) *Sensor {
	config := Opts{
		AmbientTemperature: 25,
		PollAttempts:       5,
		PollInterval:       10 * time.Millisecond,
		ResetDelay:         10 * time.Millisecond,
		Compensator:        NewCompensator,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.PollAttempts < 1 {
		config.PollAttempts = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sensor{
		opener: opener,
		config: config,
		log:    logger,
	}
}

// Open connects to the chip at address, checks its identity and loads the
// factory calibration. The sensor is left in sleep mode.
func (s *Sensor) Open(ctx context.Context, address byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.transport != nil {
		return ErrAlreadyOpen
	}
	if address != AddressLow && address != AddressHigh {
		return fmt.Errorf("%w: unsupported address %#x", ErrDeviceNotFound, address)
	}
	if s.opener == nil {
		return fmt.Errorf("%w: no opener", ErrTransport)
	}
	t, err := s.opener.Open(ctx, address)
	if err != nil {
		return fmt.Errorf("%w: open %#x: %w", ErrTransport, address, err)
	}
	s.transport = t
	if err := s.handshake(ctx); err != nil {
		s.transport = nil
		if cerr := t.Close(); cerr != nil {
			s.log.Warn("bme680: could not release transport", "error", cerr)
		}
		return err
	}
	s.addr = address
	s.mode = ModeSleep
	s.state = StateIdle
	s.sampling = nil
	s.heater = nil
	s.resync = false
	s.heaterResync = false
	s.log.Debug("bme680: opened", "address", fmt.Sprintf("%#x", address), "variant", s.variant)
	return nil
}

func (s *Sensor) handshake(ctx context.Context) error {
	if err := s.write(ctx, regSoftReset, softResetCode); err != nil {
		return fmt.Errorf("bme680: soft reset: %w", err)
	}
	s.transport.Delay(s.config.ResetDelay)

	id := make([]byte, 1)
	if err := s.read(ctx, regChipID, id); err != nil {
		return fmt.Errorf("bme680: read chip id: %w", err)
	}
	if id[0] != chipID {
		return fmt.Errorf("%w: chip id %#x, expected %#x", ErrDeviceNotFound, id[0], chipID)
	}
	if err := s.read(ctx, regVariantID, id); err != nil {
		return fmt.Errorf("bme680: read variant id: %w", err)
	}
	s.variant = Variant(id[0])

	coeff1 := make([]byte, lenCoeff1)
	coeff2 := make([]byte, lenCoeff2)
	coeff3 := make([]byte, lenCoeff3)
	if err := s.read(ctx, regCoeff1, coeff1); err != nil {
		return fmt.Errorf("bme680: read calibration: %w", err)
	}
	if err := s.read(ctx, regCoeff2, coeff2); err != nil {
		return fmt.Errorf("bme680: read calibration: %w", err)
	}
	if err := s.read(ctx, regCoeff3, coeff3); err != nil {
		return fmt.Errorf("bme680: read calibration: %w", err)
	}
	cal, err := ParseCalibration(coeff1, coeff2, coeff3)
	if err != nil {
		return err
	}
	s.comp = s.config.Compensator(cal, s.variant)
	return nil
}

// Configure writes oversampling and filter settings. The configuration is
// validated before anything is written; an invalid one leaves the previous
// configuration in place.
func (s *Sensor) Configure(ctx context.Context, cfg SamplingConfig) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.transport == nil {
		return ErrNotInitialized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.writeSampling(ctx, cfg); err != nil {
		s.resync = s.sampling != nil
		return fmt.Errorf("bme680: configure: %w", err)
	}
	s.sampling = &cfg
	s.resync = false
	return nil
}

func (s *Sensor) writeSampling(ctx context.Context, cfg SamplingConfig) error {
	// ctrl_hum only takes effect after the following ctrl_meas write
	if err := s.write(ctx, regCtrlHum, byte(cfg.Humidity)); err != nil {
		return err
	}
	if err := s.write(ctx, regConfig, byte(cfg.Filter)<<2); err != nil {
		return err
	}
	return s.write(ctx, regCtrlMeas, cfg.ctrlMeas(ModeSleep))
}

// ConfigureHeater sets heater profile 0. Heating only happens during the next
// forced measurement.
func (s *Sensor) ConfigureHeater(ctx context.Context, h HeaterConfig) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.transport == nil {
		return ErrNotInitialized
	}
	if err := h.Validate(); err != nil {
		return err
	}
	if err := s.writeHeater(ctx, h); err != nil {
		s.heaterResync = true
		return fmt.Errorf("bme680: configure heater: %w", err)
	}
	s.heater = &h
	s.heaterResync = false
	return nil
}

func (s *Sensor) writeHeater(ctx context.Context, h HeaterConfig) error {
	code := s.comp.HeaterResistance(h.Temperature, s.config.AmbientTemperature)
	if err := s.write(ctx, regResHeat0, code); err != nil {
		return err
	}
	if err := s.write(ctx, regGasWait0, heaterDurationCode(h.Duration)); err != nil {
		return err
	}
	if err := s.write(ctx, regCtrlGas0, 0x00); err != nil {
		return err
	}
	runGas := runGasLow
	if s.variant == VariantBME688 {
		runGas = runGasHigh
	}
	return s.write(ctx, regCtrlGas1, runGas|heaterProfile)
}

// DisableHeater switches the heater off; subsequent readings carry no gas value.
func (s *Sensor) DisableHeater(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.transport == nil {
		return ErrNotInitialized
	}
	if err := s.disableHeater(ctx); err != nil {
		s.heaterResync = true
		return fmt.Errorf("bme680: disable heater: %w", err)
	}
	s.heaterResync = false
	return nil
}

// syncHeater rewrites the stored heater state after an interrupted heater
// update.
func (s *Sensor) syncHeater(ctx context.Context) error {
	if s.heater == nil {
		return s.disableHeater(ctx)
	}
	return s.writeHeater(ctx, *s.heater)
}

func (s *Sensor) disableHeater(ctx context.Context) error {
	if err := s.write(ctx, regCtrlGas0, heatOffBit); err != nil {
		return err
	}
	if err := s.write(ctx, regCtrlGas1, 0x00); err != nil {
		return err
	}
	s.heater = nil
	return nil
}

// ReadMode reads the operating mode from the device.
func (s *Sensor) ReadMode(ctx context.Context) (Mode, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.transport == nil {
		return 0, ErrNotInitialized
	}
	buf := make([]byte, 1)
	if err := s.read(ctx, regCtrlMeas, buf); err != nil {
		return 0, fmt.Errorf("bme680: read mode: %w", err)
	}
	return Mode(buf[0] & modeMask), nil
}

// SetMode puts the chip to sleep, aborting a conversion in progress. Forced
// cycles are only started by Measure, which owns the wait and the readout;
// continuous modes are not supported.
func (s *Sensor) SetMode(ctx context.Context, m Mode) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.transport == nil {
		return ErrNotInitialized
	}
	switch m {
	case ModeSleep:
	case ModeForced:
		return invalidConfig("forced mode is entered through Measure")
	default:
		return invalidConfig("unsupported mode %s", m)
	}
	buf := make([]byte, 1)
	if err := s.read(ctx, regCtrlMeas, buf); err != nil {
		return fmt.Errorf("bme680: set mode: %w", err)
	}
	if err := s.write(ctx, regCtrlMeas, buf[0]&^modeMask|byte(m)); err != nil {
		return fmt.Errorf("bme680: set mode: %w", err)
	}
	s.mode = m
	return nil
}

// Close releases the transport. It is safe to call more than once; only the
// first call releases anything.
func (s *Sensor) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.transport == nil {
		return nil
	}
	t := s.transport
	s.transport = nil
	s.comp = nil
	s.sampling = nil
	s.heater = nil
	s.resync = false
	s.heaterResync = false
	s.mode = ModeSleep
	s.state = StateIdle
	if err := t.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrTransport, err)
	}
	s.log.Debug("bme680: closed", "address", fmt.Sprintf("%#x", s.addr))
	return nil
}

func (s *Sensor) Address() byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.addr
}

func (s *Sensor) Variant() Variant {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.variant
}

// Mode is the operating mode last written by the session.
func (s *Sensor) Mode() Mode {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.mode
}

func (s *Sensor) State() State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

// Sampling returns the stored sampling configuration, if any.
func (s *Sensor) Sampling() (SamplingConfig, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.sampling == nil {
		return SamplingConfig{}, false
	}
	return *s.sampling, true
}

// Heater returns the stored heater configuration, if any.
func (s *Sensor) Heater() (HeaterConfig, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.heater == nil {
		return HeaterConfig{}, false
	}
	return *s.heater, true
}

func (s *Sensor) write(ctx context.Context, reg byte, data ...byte) error {
	if err := s.transport.WriteRegister(ctx, reg, data); err != nil {
		return transportError("write", reg, err)
	}
	return nil
}

func (s *Sensor) read(ctx context.Context, reg byte, buf []byte) error {
	if err := s.transport.ReadRegister(ctx, reg, buf); err != nil {
		return transportError("read", reg, err)
	}
	return nil
}
