package sink

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gr-butler/tiltcompass/data"
	"github.com/gr-butler/tiltcompass/env"
	"github.com/gr-butler/tiltcompass/metrics"
	logger "github.com/sirupsen/logrus"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttAckTimeout     = 5 * time.Second
	mqttPending        = 64
)

type publishFunc func(topic string, payload []byte) mqtt.Token

// MQTT publishes every drained record as a JSON message. Publishing does not
// wait for the broker. Outstanding tokens queue for a single waiter; when the
// queue is full the message goes out unconfirmed.
type MQTT struct {
	topic       string
	publish     publishFunc
	asm         *data.Assembler
	now         func() time.Time
	log         *logger.Entry
	metrics     *metrics.Pipeline
	pending     chan mqtt.Token
	done        chan struct{}
	ackTimeout  time.Duration
	unconfirmed atomic.Uint64
	failed      atomic.Uint64
	closed      bool
	close       func()
}

// ClientID returns id, or a random one when id is empty.
func ClientID(id string) string {
	if id != "" {
		return id
	}
	return "tiltcompass-" + uuid.NewString()[:8]
}

func DialMQTT(cfg env.MQTTConfig, log *logger.Entry, m *metrics.Pipeline) (*MQTT, error) {
	clientID := ClientID(cfg.ClientID)
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		log.Infof("Connected to MQTT broker %v as %v", cfg.Broker, clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("sink: mqtt connect to %v timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("sink: mqtt connect to %v: %w", cfg.Broker, err)
	}

	qos := cfg.QoS
	publish := func(topic string, payload []byte) mqtt.Token {
		return client.Publish(topic, qos, false, payload)
	}
	s := newMQTT(cfg.Topic, publish, mqttPending, mqttAckTimeout, log, m)
	s.close = func() { client.Disconnect(250) }
	return s, nil
}

func newMQTT(topic string, publish publishFunc, pending int, ackTimeout time.Duration, log *logger.Entry, m *metrics.Pipeline) *MQTT {
	s := &MQTT{
		topic:      topic,
		publish:    publish,
		now:        time.Now,
		log:        log,
		metrics:    m,
		pending:    make(chan mqtt.Token, pending),
		done:       make(chan struct{}),
		ackTimeout: ackTimeout,
	}
	s.asm = data.NewAssembler(s.send)
	go s.confirm()
	return s
}

func (s *MQTT) send(r data.Record) error {
	payload, err := json.Marshal(NewMessage(r, s.now()))
	if err != nil {
		return err
	}
	t := s.publish(s.topic, payload)
	select {
	case <-t.Done():
		// not connected and the like fail straight away
		return t.Error()
	default:
	}
	select {
	case s.pending <- t:
	default:
		s.unconfirmed.Add(1)
	}
	return nil
}

// confirm waits on outstanding tokens one at a time, each for at most ackTimeout.
func (s *MQTT) confirm() {
	defer close(s.done)
	for t := range s.pending {
		if !t.WaitTimeout(s.ackTimeout) {
			s.log.Warnf("MQTT publish not acknowledged after %v", s.ackTimeout)
			s.failed.Add(1)
			s.metrics.SinkError()
			continue
		}
		if err := t.Error(); err != nil {
			s.log.WithError(err).Warn("MQTT publish failed")
			s.failed.Add(1)
			s.metrics.SinkError()
		}
	}
}

// Write reframes p into records and publishes them.
func (s *MQTT) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("sink: mqtt sink closed")
	}
	return s.asm.Write(p)
}

// Skipped counts stream bytes that were not part of a record.
func (s *MQTT) Skipped() uint64 {
	return s.asm.Skipped()
}

// Unconfirmed counts messages published while the waiter queue was full.
func (s *MQTT) Unconfirmed() uint64 {
	return s.unconfirmed.Load()
}

// Failed counts publishes that errored or were never acknowledged.
func (s *MQTT) Failed() uint64 {
	return s.failed.Load()
}

func (s *MQTT) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.pending)
	<-s.done
	if s.close != nil {
		s.close()
	}
	return nil
}
