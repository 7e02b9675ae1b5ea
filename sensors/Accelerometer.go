package sensors

import (
	"encoding/binary"
	"fmt"

	"github.com/gr-butler/tiltcompass/vector"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// LSM303DLHC accelerometer registers
const (
	LSM303_ACCEL_ADDRESS = 0x19
	CTRL_REG1_A          = 0x20
	CTRL_REG4_A          = 0x23
	OUT_X_L_A            = 0x28
	autoIncrement        = 0x80

	allAxesEnabled = 0x07
	blockUpdate    = 0x80
	highResolution = 0x08
)

var odrCodes = map[physic.Frequency]byte{
	1 * physic.Hertz:    0x1,
	10 * physic.Hertz:   0x2,
	25 * physic.Hertz:   0x3,
	50 * physic.Hertz:   0x4,
	100 * physic.Hertz:  0x5,
	200 * physic.Hertz:  0x6,
	400 * physic.Hertz:  0x7,
	1344 * physic.Hertz: 0x9,
}

// full scale in g to the FS bits of CTRL_REG4_A
var rangeCodes = map[int]byte{
	2:  0x00,
	4:  0x10,
	8:  0x20,
	16: 0x30,
}

type AccelOpts struct {
	Addr uint16
	// output data rate of the sensor itself, not the sampling rate
	ODR physic.Frequency
	// full scale range in g: 2, 4, 8 or 16
	Range int
}

var DefaultAccelOpts = AccelOpts{
	Addr:  LSM303_ACCEL_ADDRESS,
	ODR:   400 * physic.Hertz,
	Range: 2,
}

// Accelerometer reads the LSM303DLHC and returns samples in the board frame:
// x = sensor y, y = -sensor x, z = sensor z.
type Accelerometer struct {
	dev   conn.Conn
	opts  AccelOpts
	write [1]byte
	read  [6]byte
}

func NewAccelerometer(bus i2c.Bus, opts *AccelOpts) (*Accelerometer, error) {
	if opts == nil {
		opts = &DefaultAccelOpts
	}
	o := *opts
	if o.Addr == 0 {
		o.Addr = LSM303_ACCEL_ADDRESS
	}
	odr, ok := odrCodes[o.ODR]
	if !ok {
		return nil, fmt.Errorf("lsm303: unsupported output data rate %v", o.ODR)
	}
	fs, ok := rangeCodes[o.Range]
	if !ok {
		return nil, fmt.Errorf("lsm303: unsupported range +/-%dg", o.Range)
	}

	logger.Infof("Starting LSM303 accelerometer I2C [%x] ODR [%v] range [+/-%dg]", o.Addr, o.ODR, o.Range)
	a := &Accelerometer{dev: &i2c.Dev{Addr: o.Addr, Bus: bus}, opts: o}

	reg1 := odr<<4 | allAxesEnabled
	if err := a.dev.Tx([]byte{CTRL_REG1_A, reg1}, nil); err != nil {
		return nil, fmt.Errorf("lsm303: write CTRL_REG1_A: %w", err)
	}
	if err := a.dev.Tx([]byte{CTRL_REG4_A, blockUpdate | fs | highResolution}, nil); err != nil {
		return nil, fmt.Errorf("lsm303: write CTRL_REG4_A: %w", err)
	}

	// check the device is there and took the setting
	check := make([]byte, 1)
	if err := a.dev.Tx([]byte{CTRL_REG1_A}, check); err != nil {
		return nil, fmt.Errorf("lsm303: read CTRL_REG1_A: %w", err)
	}
	if check[0] != reg1 {
		return nil, fmt.Errorf("lsm303: CTRL_REG1_A=0x%02X want 0x%02X", check[0], reg1)
	}
	logger.Info("...      LSM303 Ready")
	return a, nil
}

// GPerLSB is the nominal scale of a raw reading at the configured range.
func (a *Accelerometer) GPerLSB() float64 {
	return float64(a.opts.Range) / 32768
}

// Read returns one raw sample. It does not allocate.
func (a *Accelerometer) Read() (vector.Raw, error) {
	a.write[0] = OUT_X_L_A | autoIncrement
	if err := a.dev.Tx(a.write[:], a.read[:]); err != nil {
		return vector.Raw{}, fmt.Errorf("lsm303: read accel: %w", err)
	}
	x := int16(binary.LittleEndian.Uint16(a.read[0:2]))
	y := int16(binary.LittleEndian.Uint16(a.read[2:4]))
	z := int16(binary.LittleEndian.Uint16(a.read[4:6]))

	return vector.Raw{X: int32(y), Y: -int32(x), Z: int32(z)}, nil
}

func (a *Accelerometer) String() string {
	return fmt.Sprintf("LSM303DLHC{%#x}", a.opts.Addr)
}
