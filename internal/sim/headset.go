package sim

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HeadsetChannels are the channels of the simulated stream, laid out like an
// EPOC+ headset streamed over LSL.
var HeadsetChannels = []string{
	"Timestamp", "Counter", "Interpolate",
	"AF3", "F7", "F3", "FC5", "T7", "P7", "O1",
	"O2", "P8", "T8", "FC6", "F4", "F8", "AF4",
	"HardwareMarker", "Markers",
}

const defaultSampleRate = 10

// Headset is a simulated signal source. While started it produces random
// samples at SampleRate and reports itself available.
type Headset struct {
	name       string
	sampleRate int
	log        zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	samples atomic.Uint64
	last    atomic.Pointer[[]float64]
}

// NewHeadset returns a stopped simulator. sampleRate <= 0 selects 10 Hz.
func NewHeadset(name string, sampleRate int, logger *zerolog.Logger) *Headset {
	if name == "" {
		name = "Headset Sim"
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	h := &Headset{name: name, sampleRate: sampleRate, log: zerolog.Nop()}
	if logger != nil {
		h.log = logger.With().Str("component", "sim-headset").Logger()
	}
	return h
}

func (h *Headset) Name() string { return h.name }

// IsAvailable reports whether the simulator is streaming.
func (h *Headset) IsAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// Start begins streaming. It reports false when already running.
func (h *Headset) Start() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.stream(ctx, h.done)
	h.log.Info().Int("hz", h.sampleRate).Msg("headset simulator started")
	return true
}

// Stop halts streaming and waits for the sample goroutine to exit. It
// reports false when the simulator was not running.
func (h *Headset) Stop() bool {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	h.log.Info().Uint64("samples", h.samples.Load()).Msg("headset simulator stopped")
	return true
}

// Samples returns how many samples have been produced since creation.
func (h *Headset) Samples() uint64 { return h.samples.Load() }

// LastSample returns a copy of the most recent sample, or nil.
func (h *Headset) LastSample() []float64 {
	p := h.last.Load()
	if p == nil {
		return nil
	}
	return append([]float64(nil), (*p)...)
}

func (h *Headset) stream(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second / time.Duration(h.sampleRate))
	defer ticker.Stop()
	for {
		sample := make([]float64, len(HeadsetChannels))
		for i := range sample {
			sample[i] = rand.Float64()
		}
		h.last.Store(&sample)
		h.samples.Add(1)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
