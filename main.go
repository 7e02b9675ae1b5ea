package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gr-butler/tiltcompass/buffer"
	"github.com/gr-butler/tiltcompass/data"
	"github.com/gr-butler/tiltcompass/env"
	"github.com/gr-butler/tiltcompass/led"
	"github.com/gr-butler/tiltcompass/metrics"
	"github.com/gr-butler/tiltcompass/scheduler"
	"github.com/gr-butler/tiltcompass/sensors"
	"github.com/gr-butler/tiltcompass/sink"
	"github.com/gr-butler/tiltcompass/vector"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	logger "github.com/sirupsen/logrus"
)

const version = "GRB-TiltCompass-1.0.0"

type tiltcompass struct {
	status   *data.Status
	producer *buffer.Producer
	testMode bool
}

type webdata struct {
	data.Snapshot
	Version    string `json:"version"`
	BufferUsed int    `json:"buffer_used"`
	BufferCap  int    `json:"buffer_capacity"`
	TestMode   bool   `json:"test_mode"`
}

func main() {
	args := env.Args{
		Config:  flag.String("config", "", "path to the YAML config file"),
		Test:    flag.Bool("test", false, "test mode, simulated accelerometer and no GPIO"),
		Verbose: flag.Bool("verbose", false, "debug logging"),
	}
	flag.Parse()

	cfg, err := env.Load(*args.Config)
	if err != nil {
		logger.Fatalf("Failed to load config [%v]", err)
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	if *args.Verbose {
		level = logger.DebugLevel
	}
	logger.SetLevel(level)

	logger.Infof("Starting tilt compass [%v]", version)
	if *args.Test {
		logger.Info("TEST MODE")
	}

	if err := run(cfg, *args.Test); err != nil {
		logger.Fatalf("Tilt compass stopped [%v]", err)
	}
	logger.Info("Exiting...")
}

func run(cfg env.Config, testMode bool) error {
	s, err := sensors.InitSensors(cfg.Sensor, testMode)
	if err != nil {
		return err
	}
	defer s.Close()

	// one read up front so a dead sensor fails before the LEDs start
	if err := firstSample(s.Accel, s.GPerLSB, cfg.Sample); err != nil {
		return err
	}

	compass, err := newCompass(cfg.LEDs, testMode)
	if err != nil {
		return err
	}
	compass.Sweep(cfg.LEDs.Sweep)
	defer func() { _ = compass.Off() }()

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	out, err := sink.New(cfg.Sink, logger.WithField("component", "sink"), m)
	if err != nil {
		return err
	}
	defer out.Close()

	ticker, err := scheduler.NewTicker(cfg.Sample.RateHz)
	if err != nil {
		return err
	}
	defer ticker.Stop()

	w := &tiltcompass{status: data.NewStatus(), testMode: testMode}
	var cons *buffer.Consumer
	w.producer, cons = buffer.New(cfg.Buffer.Capacity)

	sched, err := scheduler.New(scheduler.Config{
		Source:      s.Accel,
		Annunciator: compass,
		Producer:    w.producer,
		Consumer:    cons,
		Timer:       ticker,
		Idle:        ticker.Idle(cfg.Sample.Idle),
		Sink:        out,
		Policy:      cfg.Sample.Policy(),
		Log:         logger.WithField("component", "scheduler"),
		Metrics:     m,
		Status:      w.status,
	})
	if err != nil {
		return err
	}

	srv := w.startWeb(cfg.HTTP.Addr)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Sampling at %v Hz, buffer %d bytes, sink %v", cfg.Sample.RateHz, cfg.Buffer.Capacity, cfg.Sink.Type)
	err = sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("Signal received, shutting down")
		return nil
	}
	return err
}

// firstSample tries the sensor as often as a tick would. When every attempt
// fails it is fatal only under the escalate policy.
func firstSample(a sensors.Accel, gPerLSB float64, cfg env.SampleConfig) error {
	var err error
	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		var raw vector.Raw
		raw, err = a.Read()
		if err == nil {
			x, y, z := raw.G(gPerLSB)
			logger.Infof("First sample [%.3f, %.3f, %.3f] g", x, y, z)
			return nil
		}
		logger.Warnf("First sensor read failed (attempt %d of %d) [%v]", attempt+1, cfg.Retries+1, err)
	}
	if cfg.OnFailure == env.OnFailureSkip {
		logger.Warn("Sensor not answering, carrying on")
		return nil
	}
	return fmt.Errorf("first sensor read: %w", err)
}

func newCompass(cfg env.LEDConfig, testMode bool) (*led.Compass, error) {
	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	var lookup func(string) gpio.PinIO
	if testMode {
		lookup = func(name string) gpio.PinIO { return &gpiotest.Pin{N: name} }
	}
	return led.NewCompass(layout, lookup)
}

func (w *tiltcompass) startWeb(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", w.handler)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("Starting webservice on %v", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Webservice failed [%v]", err)
		}
	}()
	return srv
}

func (w *tiltcompass) handler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	wd := webdata{
		Snapshot:   w.status.Snapshot(),
		Version:    version,
		BufferUsed: w.producer.Used(),
		BufferCap:  w.producer.Capacity(),
		TestMode:   w.testMode,
	}

	js, err := json.Marshal(wd)
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Debugf("Web read: \n[%v]", string(js))
	_, _ = rw.Write(js) // not much we can do if this fails
}
