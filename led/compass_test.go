package led

import (
	"testing"
	"time"

	"github.com/gr-butler/tiltcompass/direction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func testLayout() (Layout, map[string]*gpiotest.Pin) {
	names := []string{"GPIO5", "GPIO6", "GPIO13", "GPIO19", "GPIO26", "GPIO16", "GPIO20", "GPIO21"}
	pins := map[string]*gpiotest.Pin{}
	var layout Layout
	for i, d := range direction.All {
		pins[names[i]] = &gpiotest.Pin{N: names[i], L: gpio.High}
		layout = append(layout, Output{Direction: d, Pin: names[i]})
	}
	return layout, pins
}

func lookupIn(pins map[string]*gpiotest.Pin) func(string) gpio.PinIO {
	return func(name string) gpio.PinIO {
		p, ok := pins[name]
		if !ok {
			return nil
		}
		return p
	}
}

func lit(layout Layout, pins map[string]*gpiotest.Pin) []direction.Direction {
	var on []direction.Direction
	for _, o := range layout {
		if pins[o.Pin].Read() == gpio.High {
			on = append(on, o.Direction)
		}
	}
	return on
}

func TestNewCompassStartsDark(t *testing.T) {
	layout, pins := testLayout()
	_, err := NewCompass(layout, lookupIn(pins))
	require.NoError(t, err)
	assert.Empty(t, lit(layout, pins))
}

func TestShowLightsExactlyOne(t *testing.T) {
	layout, pins := testLayout()
	c, err := NewCompass(layout, lookupIn(pins))
	require.NoError(t, err)

	for _, d := range direction.All {
		require.NoError(t, c.Show(d))
		assert.Equal(t, []direction.Direction{d}, lit(layout, pins))
		assert.Equal(t, d, c.Shown())
	}
	require.NoError(t, c.Show(direction.Flat))
	assert.Empty(t, lit(layout, pins))
}

func TestLayoutOrderIsTheIndex(t *testing.T) {
	layout, pins := testLayout()
	// swap two entries: the table, not the enum value, decides the output
	layout[0], layout[4] = layout[4], layout[0]
	c, err := NewCompass(layout, lookupIn(pins))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Index(direction.South))
	assert.Equal(t, 4, c.Index(direction.North))
	assert.Equal(t, -1, c.Index(direction.Flat))

	require.NoError(t, c.Show(direction.South))
	assert.Equal(t, gpio.High, pins[layout[0].Pin].Read())
	assert.Equal(t, "GPIO26", layout[0].Pin)
}

func TestLayoutValidation(t *testing.T) {
	layout, pins := testLayout()

	short := layout[:7]
	_, err := NewCompass(short, lookupIn(pins))
	assert.Error(t, err)

	dup := append(Layout(nil), layout...)
	dup[1].Direction = direction.North
	assert.Error(t, dup.Validate())

	flat := append(Layout(nil), layout...)
	flat[2].Direction = direction.Flat
	assert.Error(t, flat.Validate())

	samePin := append(Layout(nil), layout...)
	samePin[3].Pin = samePin[2].Pin
	assert.Error(t, samePin.Validate())

	noPin := append(Layout(nil), layout...)
	noPin[5].Pin = ""
	assert.Error(t, noPin.Validate())

	missing := append(Layout(nil), layout...)
	missing[6].Pin = "GPIO99"
	_, err = NewCompass(missing, lookupIn(pins))
	assert.Error(t, err)
}

func TestIndexPanicsForUnknownDirection(t *testing.T) {
	layout, pins := testLayout()
	c, err := NewCompass(layout, lookupIn(pins))
	require.NoError(t, err)
	assert.Panics(t, func() { c.Index(direction.Direction(11)) })
}

func TestSweep(t *testing.T) {
	oldSleep := sleep
	var steps int
	sleep = func(time.Duration) { steps++ }
	t.Cleanup(func() { sleep = oldSleep })

	layout, pins := testLayout()
	c, err := NewCompass(layout, lookupIn(pins))
	require.NoError(t, err)
	c.Sweep(time.Millisecond)
	assert.Equal(t, direction.Count, steps)
	assert.Empty(t, lit(layout, pins))
}
