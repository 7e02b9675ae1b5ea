package env

import "time"

// BCM pin names as registered by periph
const (
	GPIO2  = "GPIO2" // SDA
	GPIO3  = "GPIO3" // SCL
	GPIO4  = "GPIO4"
	GPIO5  = "GPIO5"
	GPIO6  = "GPIO6"
	GPIO12 = "GPIO12"
	GPIO13 = "GPIO13"
	GPIO16 = "GPIO16"
	GPIO17 = "GPIO17"
	GPIO19 = "GPIO19"
	GPIO20 = "GPIO20"
	GPIO21 = "GPIO21"
	GPIO22 = "GPIO22"
	GPIO26 = "GPIO26"
	GPIO27 = "GPIO27"

	// compass rose, clockwise from the top of the board
	LedNorth     = GPIO5
	LedNorthEast = GPIO6
	LedEast      = GPIO13
	LedSouthEast = GPIO19
	LedSouth     = GPIO26
	LedSouthWest = GPIO16
	LedWest      = GPIO20
	LedNorthWest = GPIO21

	DefaultI2CBus      = "/dev/i2c-1"
	DefaultAccelAddr   = 0x19
	DefaultAccelODRHz  = 400
	DefaultAccelRangeG = 2

	DefaultSampleHz       = 10.0
	DefaultBufferCapacity = 64
	DefaultIdle           = time.Millisecond
	DefaultHTTPAddr       = ":8080"
	DefaultLogLevel       = "info"

	LEDSweepStep = time.Millisecond * 100

	DefaultSerialBaud    = 115200
	DefaultSerialQueue   = 64
	DefaultMQTTTopic     = "tiltcompass/records"
	DefaultMQTTQoS       = 0
	DefaultPostgresTable = "tilt_records"
	DefaultPostgresQueue = 256
)
