package env

import (
	"fmt"
	"os"
	"time"

	"github.com/gr-butler/tiltcompass/direction"
	"github.com/gr-butler/tiltcompass/led"
	"github.com/gr-butler/tiltcompass/scheduler"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	SinkDiscard  = "discard"
	SinkSerial   = "serial"
	SinkMQTT     = "mqtt"
	SinkPostgres = "postgres"

	OnFailureEscalate = "escalate"
	OnFailureSkip     = "skip"
)

type Config struct {
	Sample   SampleConfig `yaml:"sample"`
	Buffer   BufferConfig `yaml:"buffer"`
	Sensor   SensorConfig `yaml:"sensor"`
	LEDs     LEDConfig    `yaml:"leds"`
	Sink     SinkConfig   `yaml:"sink"`
	HTTP     HTTPConfig   `yaml:"http"`
	LogLevel string       `yaml:"log_level"`
}

type SampleConfig struct {
	RateHz float64       `yaml:"rate_hz"`
	Idle   time.Duration `yaml:"idle"`
	// extra sensor reads inside one tick before OnFailure applies
	Retries   int    `yaml:"retries"`
	OnFailure string `yaml:"on_failure"`
}

type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

type SensorConfig struct {
	Bus     string `yaml:"bus"`
	Address uint16 `yaml:"address"`
	ODRHz   int    `yaml:"odr_hz"`
	RangeG  int    `yaml:"range_g"`
}

type LEDConfig struct {
	// direction name to pin name, e.g. north_east: GPIO6
	Pins  map[string]string `yaml:"pins"`
	Sweep time.Duration     `yaml:"sweep"`
}

type SinkConfig struct {
	Type     string         `yaml:"type"`
	Serial   SerialConfig   `yaml:"serial"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// drained chunks waiting for the port
	Queue int `yaml:"queue"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
	Queue int    `yaml:"queue"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultLEDPins is the board wiring.
func DefaultLEDPins() map[string]string {
	return map[string]string{
		"north":      LedNorth,
		"north_east": LedNorthEast,
		"east":       LedEast,
		"south_east": LedSouthEast,
		"south":      LedSouth,
		"south_west": LedSouthWest,
		"west":       LedWest,
		"north_west": LedNorthWest,
	}
}

// Default is the configuration used when no file is given.
func Default() Config {
	var cfg Config
	if err := cfg.finish(); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a YAML config file. Missing keys take their defaults. An empty
// path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) finish() error {
	if cfg.Sample.RateHz == 0 {
		cfg.Sample.RateHz = DefaultSampleHz
	}
	if cfg.Sample.RateHz < 0 {
		return fmt.Errorf("sample.rate_hz must be > 0")
	}
	if cfg.Sample.Idle == 0 {
		cfg.Sample.Idle = DefaultIdle
	}
	if cfg.Sample.Idle < 0 {
		return fmt.Errorf("sample.idle must be > 0")
	}
	if cfg.Sample.Retries < 0 {
		return fmt.Errorf("sample.retries must be >= 0")
	}
	switch cfg.Sample.OnFailure {
	case "":
		cfg.Sample.OnFailure = OnFailureEscalate
	case OnFailureEscalate, OnFailureSkip:
	default:
		return fmt.Errorf("sample.on_failure must be %q or %q, got %q", OnFailureEscalate, OnFailureSkip, cfg.Sample.OnFailure)
	}

	if cfg.Buffer.Capacity == 0 {
		cfg.Buffer.Capacity = DefaultBufferCapacity
	}
	if cfg.Buffer.Capacity < 0 {
		return fmt.Errorf("buffer.capacity must be > 0")
	}

	if cfg.Sensor.Bus == "" {
		cfg.Sensor.Bus = DefaultI2CBus
	}
	if cfg.Sensor.Address == 0 {
		cfg.Sensor.Address = DefaultAccelAddr
	}
	if cfg.Sensor.ODRHz == 0 {
		cfg.Sensor.ODRHz = DefaultAccelODRHz
	}
	if cfg.Sensor.RangeG == 0 {
		cfg.Sensor.RangeG = DefaultAccelRangeG
	}

	if len(cfg.LEDs.Pins) == 0 {
		cfg.LEDs.Pins = DefaultLEDPins()
	}
	if cfg.LEDs.Sweep == 0 {
		cfg.LEDs.Sweep = LEDSweepStep
	}
	if _, err := cfg.LEDs.Layout(); err != nil {
		return err
	}

	if err := cfg.Sink.finish(); err != nil {
		return err
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

func (s *SinkConfig) finish() error {
	switch s.Type {
	case "":
		s.Type = SinkDiscard
	case SinkDiscard:
	case SinkSerial:
		if s.Serial.Port == "" {
			return fmt.Errorf("sink.serial.port is required when sink.type is serial")
		}
		if s.Serial.Baud == 0 {
			s.Serial.Baud = DefaultSerialBaud
		}
		if s.Serial.Queue == 0 {
			s.Serial.Queue = DefaultSerialQueue
		}
		if s.Serial.Queue < 0 {
			return fmt.Errorf("sink.serial.queue must be > 0")
		}
	case SinkMQTT:
		if s.MQTT.Broker == "" {
			return fmt.Errorf("sink.mqtt.broker is required when sink.type is mqtt")
		}
		if s.MQTT.Topic == "" {
			s.MQTT.Topic = DefaultMQTTTopic
		}
		if s.MQTT.QoS > 2 {
			return fmt.Errorf("sink.mqtt.qos must be 0, 1 or 2")
		}
	case SinkPostgres:
		if s.Postgres.DSN == "" {
			return fmt.Errorf("sink.postgres.dsn is required when sink.type is postgres")
		}
		if s.Postgres.Table == "" {
			s.Postgres.Table = DefaultPostgresTable
		}
		if s.Postgres.Queue == 0 {
			s.Postgres.Queue = DefaultPostgresQueue
		}
		if s.Postgres.Queue < 0 {
			return fmt.Errorf("sink.postgres.queue must be > 0")
		}
	default:
		return fmt.Errorf("sink.type %q unknown", s.Type)
	}
	return nil
}

// Layout turns the pin map into a compass layout ordered clockwise from North.
func (c LEDConfig) Layout() (led.Layout, error) {
	byDir := make(map[direction.Direction]string, len(c.Pins))
	for name, pin := range c.Pins {
		d, err := direction.ParseDirection(name)
		if err != nil {
			return nil, fmt.Errorf("leds.pins: %w", err)
		}
		if d == direction.Flat {
			return nil, fmt.Errorf("leds.pins: flat has no output")
		}
		if _, dup := byDir[d]; dup {
			return nil, fmt.Errorf("leds.pins: %v given twice", d)
		}
		byDir[d] = pin
	}
	layout := make(led.Layout, 0, direction.Count)
	for _, d := range direction.All {
		pin, ok := byDir[d]
		if !ok {
			return nil, fmt.Errorf("leds.pins: no pin for %v", d)
		}
		layout = append(layout, led.Output{Direction: d, Pin: pin})
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return layout, nil
}

// Policy is the sensor failure policy for the scheduler.
func (c SampleConfig) Policy() scheduler.SensorPolicy {
	if c.OnFailure == OnFailureSkip {
		return scheduler.SkipPolicy(c.Retries)
	}
	return scheduler.RetryPolicy(c.Retries)
}
