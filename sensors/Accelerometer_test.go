package sensors

import (
	"errors"
	"testing"

	"github.com/gr-butler/tiltcompass/direction"
	"github.com/gr-butler/tiltcompass/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func initOps(reg1, reg4 byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: LSM303_ACCEL_ADDRESS, W: []byte{CTRL_REG1_A, reg1}},
		{Addr: LSM303_ACCEL_ADDRESS, W: []byte{CTRL_REG4_A, reg4}},
		{Addr: LSM303_ACCEL_ADDRESS, W: []byte{CTRL_REG1_A}, R: []byte{reg1}},
	}
}

func TestNewAccelerometerDefaults(t *testing.T) {
	bus := &i2ctest.Playback{Ops: initOps(0x77, 0x88)}
	a, err := NewAccelerometer(bus, nil)
	require.NoError(t, err)
	require.NoError(t, bus.Close())
	assert.Equal(t, 1.0/16384, a.GPerLSB())
}

func TestNewAccelerometerRange(t *testing.T) {
	bus := &i2ctest.Playback{Ops: initOps(0x27, 0xA8)}
	_, err := NewAccelerometer(bus, &AccelOpts{ODR: 10 * physic.Hertz, Range: 8})
	require.NoError(t, err)
	require.NoError(t, bus.Close())
}

func TestNewAccelerometerRejectsOptions(t *testing.T) {
	bus := &i2ctest.Playback{}
	_, err := NewAccelerometer(bus, &AccelOpts{ODR: 3 * physic.Hertz, Range: 2})
	assert.Error(t, err)
	_, err = NewAccelerometer(bus, &AccelOpts{ODR: 400 * physic.Hertz, Range: 3})
	assert.Error(t, err)
}

func TestNewAccelerometerReadbackMismatch(t *testing.T) {
	ops := initOps(0x77, 0x88)
	ops[2].R = []byte{0x00}
	bus := &i2ctest.Playback{Ops: ops}
	_, err := NewAccelerometer(bus, nil)
	assert.Error(t, err)
}

func TestReadRemapsAxes(t *testing.T) {
	ops := append(initOps(0x77, 0x88),
		// sensor x = -16384, y = 0, z = 100, little endian
		i2ctest.IO{Addr: LSM303_ACCEL_ADDRESS, W: []byte{OUT_X_L_A | autoIncrement}, R: []byte{0x00, 0xC0, 0x00, 0x00, 0x64, 0x00}},
	)
	bus := &i2ctest.Playback{Ops: ops}
	a, err := NewAccelerometer(bus, nil)
	require.NoError(t, err)

	raw, err := a.Read()
	require.NoError(t, err)
	assert.Equal(t, vector.Raw{X: 0, Y: 16384, Z: 100}, raw)
	require.NoError(t, bus.Close())

	u, err := vector.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, direction.North, direction.Classify(u))
}

func TestReadMostNegativeDoesNotOverflow(t *testing.T) {
	ops := append(initOps(0x77, 0x88),
		i2ctest.IO{Addr: LSM303_ACCEL_ADDRESS, W: []byte{OUT_X_L_A | autoIncrement}, R: []byte{0x00, 0x80, 0x00, 0x00, 0x00, 0x00}},
	)
	bus := &i2ctest.Playback{Ops: ops}
	a, err := NewAccelerometer(bus, nil)
	require.NoError(t, err)
	raw, err := a.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(32768), raw.Y)
}

func TestReadError(t *testing.T) {
	bus := &i2ctest.Playback{Ops: initOps(0x77, 0x88), DontPanic: true}
	a, err := NewAccelerometer(bus, nil)
	require.NoError(t, err)

	// no more recorded operations, the playback returns an error
	_, err = a.Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lsm303: read accel")
	assert.NotNil(t, errors.Unwrap(err))
}

func TestSimulatedCircles(t *testing.T) {
	s := NewSimulated()
	seen := map[direction.Direction]int{}
	for i := 0; i < 48; i++ {
		raw, err := s.Read()
		require.NoError(t, err)
		u, err := vector.Normalize(raw)
		require.NoError(t, err)
		seen[direction.Classify(u)]++
	}
	for _, d := range direction.All {
		assert.Greater(t, seen[d], 0, d.String())
	}
	assert.Equal(t, 24, seen[direction.Flat])
}
