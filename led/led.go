package led

import (
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

type LED struct {
	Name    string
	lock    sync.Mutex
	on      bool
	gpioPin gpio.PinIO
}

func NewLED(name string, pin gpio.PinIO) (*LED, error) {
	if pin == nil {
		return nil, fmt.Errorf("led %v: no pin", name)
	}
	logger.Infof("Creating new LED on pin [%v] called [%v]", pin, name)
	l := &LED{Name: name, gpioPin: pin}
	if err := l.Off(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LED) On() error {
	return l.set(true)
}

func (l *LED) Off() error {
	return l.set(false)
}

func (l *LED) set(on bool) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := l.gpioPin.Out(level); err != nil {
		return fmt.Errorf("led %v: %w", l.Name, err)
	}
	l.on = on
	return nil
}

func (l *LED) IsOn() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.on
}
