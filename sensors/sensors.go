package sensors

import (
	"fmt"

	"github.com/gr-butler/tiltcompass/env"
	"github.com/gr-butler/tiltcompass/vector"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

/*
 * Sensors owns the I2C bus and the accelerometer hanging off it.
 */

type Accel interface {
	Read() (vector.Raw, error)
}

type Sensors struct {
	Accel Accel
	// nominal g per raw count, for logging
	GPerLSB float64
	bus     i2c.BusCloser
}

func accelOpts(cfg env.SensorConfig) *AccelOpts {
	return &AccelOpts{
		Addr:  cfg.Address,
		ODR:   physic.Frequency(cfg.ODRHz) * physic.Hertz,
		Range: cfg.RangeG,
	}
}

// InitSensors opens the bus and configures the accelerometer. In test mode
// nothing is touched and a simulated source stands in.
func InitSensors(cfg env.SensorConfig, testMode bool) (*Sensors, error) {
	s := &Sensors{}
	if testMode {
		logger.Info("Using simulated accelerometer")
		s.Accel = NewSimulated()
		s.GPerLSB = 1.0 / simOneG
		return s, nil
	}

	if _, err := host.Init(); err != nil {
		logger.Errorf("Failed to init host drivers [%v]", err)
		return nil, err
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("failed to open I²C %v: %w", cfg.Bus, err)
	}

	a, err := NewAccelerometer(bus, accelOpts(cfg))
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s.Accel = a
	s.GPerLSB = a.GPerLSB()
	s.bus = bus
	logger.Info("Sensors initialized.")
	return s, nil
}

func (s *Sensors) Close() error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Close()
}
