// Package app wires the camera, capture loop, live session and state feed
// into the gesture visualization backend.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/camera"
	"github.com/teslashibe/go-gesture/pkg/capture"
	"github.com/teslashibe/go-gesture/pkg/live"
	_ "github.com/teslashibe/go-gesture/pkg/live/bundled" // Register live providers
	"github.com/teslashibe/go-gesture/pkg/metrics"
	"github.com/teslashibe/go-gesture/pkg/particles"
	"github.com/teslashibe/go-gesture/pkg/sink"
	"github.com/teslashibe/go-gesture/pkg/web"
)

// Device is an open camera.
type Device interface {
	capture.Device
	Close() error
}

// DeviceOpener opens the camera described by cfg.
type DeviceOpener func(cfg camera.Config) (Device, error)

func openWebcam(cfg camera.Config) (Device, error) {
	w, err := camera.Open(cfg)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Option configures an App.
type Option func(*App)

// WithTransport replaces the transport built from Config.Live.
func WithTransport(t live.Transport) Option {
	return func(a *App) { a.transport = t }
}

// WithDeviceOpener replaces the webcam.
func WithDeviceOpener(open DeviceOpener) Option {
	return func(a *App) { a.openDevice = open }
}

// App is the gesture visualization application.
type App struct {
	config  Config
	log     *slog.Logger
	metrics *metrics.Metrics

	transport  live.Transport
	openDevice DeviceOpener
	encoder    capture.Encoder

	client *live.Client
	state  *sink.Sink
	web    *web.Server

	runCtx context.Context

	// sessionMu serializes Connect calls.
	sessionMu sync.Mutex

	// captureMu guards device and loop. OnError takes it from the
	// session goroutine, so it is never held across client calls.
	captureMu sync.Mutex
	device    Device
	loop      *capture.Loop
}

// New creates an App from a validated configuration.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config:     cfg,
		log:        log.Component("app"),
		metrics:    metrics.New(),
		openDevice: openWebcam,
		encoder:    capture.NewJPEGEncoder(),
		state:      sink.New(particles.DefaultState()),
		runCtx:     context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init builds the live client and the state feed server.
func (a *App) Init() error {
	if a.transport == nil {
		t, err := live.NewTransport(a.config.Live.WithDebug(a.config.Debug))
		if err != nil {
			return fmt.Errorf("live transport: %w", err)
		}
		a.transport = t
	}

	a.client = live.NewClient(a.transport,
		live.WithLogger(log.Component("live").With("provider", a.config.Live.Provider)),
		live.WithMetrics(a.metrics))
	a.client.OnConnected(a.state.HandleConnected)
	a.client.OnStateUpdate(a.state.HandleStateUpdate)
	a.client.OnError(a.handleSessionError)

	a.web = web.NewServer(a.config.ListenAddr, a.state, a, a.metrics)
	a.state.OnChange(a.web.Publish)

	a.log.Info("initialized",
		"provider", a.config.Live.Provider,
		"camera", a.config.Camera.DeviceID,
		"listen", a.config.ListenAddr)
	return nil
}

// Run serves the state feed until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.sessionMu.Lock()
	a.runCtx = ctx
	a.sessionMu.Unlock()

	if a.config.AutoConnect {
		go func() {
			if err := a.Connect(ctx); err != nil && !live.IsClosedErr(err) {
				a.log.Warn("auto connect failed", "error", err)
			}
		}()
	}
	return a.web.Run(ctx)
}

// Shutdown ends any session and releases the client.
func (a *App) Shutdown() {
	if err := a.Disconnect(); err != nil {
		a.log.Warn("disconnect", "error", err)
	}
	if a.client != nil {
		a.client.Close()
	}
	a.log.Info("shutdown complete")
}

// Sink returns the observable state.
func (a *App) Sink() *sink.Sink {
	return a.state
}

// Metrics returns the app's metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Connect opens the camera, starts a live session and begins streaming
// frames. A camera failure is reported to the sink and no session starts.
func (a *App) Connect(ctx context.Context) error {
	a.sessionMu.Lock()
	defer a.sessionMu.Unlock()

	if st := a.client.State(); st == live.StateConnecting || st == live.StateActive {
		return live.ErrAlreadyConnected
	}

	dev, err := a.openDevice(a.config.Camera)
	if err != nil {
		lerr := live.NewError(live.KindAcquisition, "camera", err)
		a.metrics.SessionError(string(live.KindAcquisition))
		a.state.HandleError(lerr)
		return lerr
	}

	if err := a.client.Connect(ctx); err != nil {
		dev.Close()
		return err
	}

	a.captureMu.Lock()
	defer a.captureMu.Unlock()

	// The session may have failed between Connect and here; OnError has then
	// already run and found no loop to stop.
	if a.client.State() != live.StateActive {
		dev.Close()
		return live.ErrDisconnected
	}

	loop := capture.NewLoop(dev, a.encoder, a.client,
		capture.WithLogger(log.Component("capture").With("camera", a.config.Camera.DeviceID)),
		capture.WithMetrics(a.metrics))
	if err := loop.Start(a.runCtx); err != nil {
		dev.Close()
		return err
	}
	a.device, a.loop = dev, loop
	a.state.SetStreaming(true)

	go a.logEvents(a.client.Events())
	return nil
}

// Disconnect closes the session and stops streaming. Safe to call when idle,
// and aborts a Connect that is still opening the session.
func (a *App) Disconnect() error {
	if a.client == nil {
		return nil
	}
	st := a.client.State()
	if err := a.client.Disconnect(); err != nil {
		return err
	}
	a.stopCapture()
	// A session that closed itself has reported its error by now; record the
	// close anyway so the sink never outlives the handle.
	if st != live.StateIdle {
		a.state.HandleClosed()
	}
	return nil
}

// handleSessionError runs on the session goroutine for every closure that
// was not an explicit Disconnect. It must not call Disconnect.
func (a *App) handleSessionError(err error) {
	a.log.Warn("session error", "kind", live.KindOf(err), "reason", live.Reason(err))
	a.stopCapture()
	a.state.HandleError(err)
}

func (a *App) stopCapture() {
	a.captureMu.Lock()
	defer a.captureMu.Unlock()

	if a.loop != nil {
		a.loop.Stop()
		a.loop = nil
	}
	if a.device != nil {
		if err := a.device.Close(); err != nil {
			a.log.Warn("camera close", "error", err)
		}
		a.device = nil
	}
	a.state.SetStreaming(false)
}

func (a *App) logEvents(events <-chan live.Event) {
	for ev := range events {
		switch ev.Type {
		case live.EventStateUpdate:
			a.log.Debug("state update", "session", ev.SessionID, "fields", ev.Update.Fields())
		case live.EventError:
			a.log.Debug("session ended", "session", ev.SessionID, "error", ev.Err)
		}
	}
}
