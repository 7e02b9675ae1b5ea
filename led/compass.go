package led

import (
	"fmt"
	"time"

	"github.com/gr-butler/tiltcompass/direction"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

var sleep = time.Sleep

// Output ties one direction to the pin that shows it.
type Output struct {
	Direction direction.Direction
	Pin       string
}

// Layout is the ordered output table. The position of an entry is its output
// index. NewCompass rejects a layout that does not name every direction exactly once.
type Layout []Output

// Compass shows a tilt direction on a ring of eight LEDs. Flat turns them all off.
type Compass struct {
	leds  []*LED
	index map[direction.Direction]int
	shown direction.Direction
}

// NewCompass resolves the layout pins with lookup, gpioreg.ByName when nil.
func NewCompass(layout Layout, lookup func(name string) gpio.PinIO) (*Compass, error) {
	if lookup == nil {
		lookup = gpioreg.ByName
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	c := &Compass{
		leds:  make([]*LED, len(layout)),
		index: make(map[direction.Direction]int, len(layout)),
		shown: direction.Flat,
	}
	for i, o := range layout {
		pin := lookup(o.Pin)
		if pin == nil {
			return nil, fmt.Errorf("led: failed to find %v pin for %v", o.Pin, o.Direction)
		}
		l, err := NewLED(o.Direction.String(), pin)
		if err != nil {
			return nil, err
		}
		c.leds[i] = l
		c.index[o.Direction] = i
	}
	return c, nil
}

// Validate checks the table is total over the eight directions with distinct pins.
func (layout Layout) Validate() error {
	if len(layout) != direction.Count {
		return fmt.Errorf("led: layout has %d outputs, want %d", len(layout), direction.Count)
	}
	seen := map[direction.Direction]bool{}
	pins := map[string]direction.Direction{}
	for i, o := range layout {
		if o.Direction == direction.Flat || !o.Direction.Valid() {
			return fmt.Errorf("led: output %d has invalid direction %v", i, o.Direction)
		}
		if seen[o.Direction] {
			return fmt.Errorf("led: direction %v mapped twice", o.Direction)
		}
		seen[o.Direction] = true
		if o.Pin == "" {
			return fmt.Errorf("led: output %d (%v) has no pin", i, o.Direction)
		}
		if prev, ok := pins[o.Pin]; ok {
			return fmt.Errorf("led: pin %v used by %v and %v", o.Pin, prev, o.Direction)
		}
		pins[o.Pin] = o.Direction
	}
	return nil
}

// Index is the output index for d, -1 for Flat.
func (c *Compass) Index(d direction.Direction) int {
	if d == direction.Flat {
		return -1
	}
	i, ok := c.index[d]
	if !ok {
		panic(fmt.Sprintf("led: no output for direction %v", d))
	}
	return i
}

// Show lights exactly the output for d. Every pin is driven straight to its
// final level so there is no dark frame between two tilted samples.
func (c *Compass) Show(d direction.Direction) error {
	target := c.Index(d)
	var first error
	for i, l := range c.leds {
		var err error
		if i == target {
			err = l.On()
		} else {
			err = l.Off()
		}
		if err != nil && first == nil {
			first = err
		}
	}
	c.shown = d
	return first
}

// Shown is the direction of the last Show.
func (c *Compass) Shown() direction.Direction {
	return c.shown
}

// Off turns every output off.
func (c *Compass) Off() error {
	return c.Show(direction.Flat)
}

// Sweep lights each output in turn so a failed LED is easy to spot at startup.
func (c *Compass) Sweep(step time.Duration) {
	logger.Info("LED sweep")
	for _, d := range direction.All {
		if err := c.Show(d); err != nil {
			logger.Errorf("LED sweep failed on %v [%v]", d, err)
		}
		sleep(step)
	}
	_ = c.Off()
}
