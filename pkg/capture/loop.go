// Package capture runs the fixed-cadence camera capture loop that feeds
// encoded frames to the live session.
package capture

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/live"
	"github.com/teslashibe/go-gesture/pkg/metrics"
)

// Frame parameters. They are tuned for the inference service's rate limits
// and are not configurable.
const (
	FrameInterval = 500 * time.Millisecond
	FrameWidth    = 320
	FrameHeight   = 240
	FrameQuality  = 0.6
	FrameMIMEType = "image/jpeg"
)

// Failure stages reported for skipped ticks.
const (
	StageCapture = "capture"
	StageEncode  = "encode"
	StageConvert = "convert"
)

// ErrAlreadyRunning is returned by Start on a running loop.
var ErrAlreadyRunning = errors.New("capture: loop already running")

// Device supplies the current camera frame.
type Device interface {
	GetFrame(ctx context.Context) (image.Image, error)
}

// Encoder compresses a frame and converts it to text-safe form.
type Encoder interface {
	Encode(img image.Image, quality float64) ([]byte, error)
	ToPortableText(data []byte) (string, error)
}

// Sender accepts encoded frames without blocking. *live.Client implements it.
type Sender interface {
	SendFrame(f live.Frame) bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.log = l }
}

// WithMetrics records ticks and failures on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(lp *Loop) { lp.metrics = m }
}

// withTicks drives the loop from ch instead of a wall-clock ticker.
func withTicks(ch <-chan time.Time) Option {
	return func(lp *Loop) { lp.ticks = ch }
}

// Loop captures, encodes and submits one frame per tick. Each tick runs as
// its own task; the ticker never waits for a previous task to finish.
// A failed tick is skipped and never stops the loop.
type Loop struct {
	device  Device
	encoder Encoder
	sender  Sender
	log     *slog.Logger
	metrics *metrics.Metrics
	ticks   <-chan time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	tasks  sync.WaitGroup
}

// NewLoop creates a stopped loop.
func NewLoop(device Device, encoder Encoder, sender Sender, opts ...Option) *Loop {
	l := &Loop{
		device:  device,
		encoder: encoder,
		sender:  sender,
		log:     log.Component("capture"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins ticking. The loop runs until Stop or until ctx is done.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	ticks := l.ticks
	var ticker *time.Ticker
	if ticks == nil {
		ticker = time.NewTicker(FrameInterval)
		ticks = ticker.C
	}

	go l.run(ctx, ticks, ticker, l.done)
	l.log.Info("capture started", "interval", FrameInterval, "width", FrameWidth, "height", FrameHeight)
	return nil
}

// Stop halts ticking and waits for in-flight tasks. Safe to call when stopped.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	l.tasks.Wait()
	l.log.Info("capture stopped")
}

// Running reports whether the loop is ticking.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *Loop) run(ctx context.Context, ticks <-chan time.Time, ticker *time.Ticker, done chan struct{}) {
	defer close(done)
	if ticker != nil {
		defer ticker.Stop()
	}

	var n uint64
	for {
		select {
		case <-ctx.Done():
			return
		case at, ok := <-ticks:
			if !ok {
				return
			}
			n++
			l.metrics.Tick()
			l.tasks.Add(1)
			go l.tick(ctx, n, at)
		}
	}
}

func (l *Loop) tick(ctx context.Context, n uint64, at time.Time) {
	defer l.tasks.Done()

	img, err := l.device.GetFrame(ctx)
	if err != nil {
		l.skip(ctx, n, StageCapture, err)
		return
	}
	data, err := l.encoder.Encode(img, FrameQuality)
	if err != nil {
		l.skip(ctx, n, StageEncode, err)
		return
	}
	text, err := l.encoder.ToPortableText(data)
	if err != nil {
		l.skip(ctx, n, StageConvert, err)
		return
	}
	l.metrics.FrameCaptured()

	if ctx.Err() != nil {
		return
	}
	l.sender.SendFrame(live.Frame{Data: text, MIMEType: FrameMIMEType, CapturedAt: at})
}

func (l *Loop) skip(ctx context.Context, n uint64, stage string, err error) {
	if ctx.Err() != nil {
		return
	}
	lerr := live.NewError(live.KindEncode, stage, err)
	l.log.Debug("tick skipped", "tick", n, "stage", stage, "error", lerr.Reason)
	l.metrics.EncodeError(stage)
}
