// Package sink holds the places drained telemetry bytes can go.
//
// The serial sink forwards the raw byte stream. The record sinks (MQTT,
// Postgres) reframe the stream with data.Assembler and ship one message or
// row per record.
package sink

import (
	"fmt"
	"io"
	"time"

	"github.com/gr-butler/tiltcompass/data"
	"github.com/gr-butler/tiltcompass/env"
	"github.com/gr-butler/tiltcompass/metrics"
	logger "github.com/sirupsen/logrus"
)

// Message is the JSON form of a record.
type Message struct {
	Seq       uint16    `json:"seq"`
	Direction string    `json:"direction"`
	Code      byte      `json:"code"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Drained   time.Time `json:"drained"`
}

func NewMessage(r data.Record, t time.Time) Message {
	return Message{
		Seq:       r.Seq,
		Direction: r.Direction.String(),
		Code:      r.Direction.Code(),
		X:         r.Unit.X,
		Y:         r.Unit.Y,
		Z:         r.Unit.Z,
		Drained:   t,
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Close() error                { return nil }

// Discard takes everything and keeps nothing.
var Discard io.WriteCloser = discard{}

// New opens the sink named in cfg.
func New(cfg env.SinkConfig, log *logger.Entry, m *metrics.Pipeline) (io.WriteCloser, error) {
	log = log.WithField("sink", cfg.Type)
	switch cfg.Type {
	case "", env.SinkDiscard:
		return Discard, nil
	case env.SinkSerial:
		return OpenSerial(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.Queue, log, m)
	case env.SinkMQTT:
		return DialMQTT(cfg.MQTT, log, m)
	case env.SinkPostgres:
		return OpenPostgres(cfg.Postgres, log, m)
	}
	return nil, fmt.Errorf("sink: unknown type %q", cfg.Type)
}
