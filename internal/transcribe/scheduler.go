// Package transcribe coordinates the live transcription pipeline: it
// snapshots accumulated audio on a cadence, runs extraction, inference, and
// CTC decoding, and delivers completed text to a sink. Exactly one inference
// cycle runs at a time; ticks arriving while one is in flight are skipped.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openvitals/vitalscribe/internal/audio"
	"github.com/openvitals/vitalscribe/internal/ctc"
	"github.com/openvitals/vitalscribe/internal/engine"
	"github.com/openvitals/vitalscribe/internal/mel"
)

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateLoadingModel
	StateReady
	StateListening
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingModel:
		return "loading-model"
	case StateReady:
		return "ready"
	case StateListening:
		return "listening"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrBusy is returned when an utterance decode is requested while another
// inference cycle is still in flight.
var ErrBusy = errors.New("transcribe: inference cycle in flight")

// ErrNoUtterance is returned by EndUtteranceAndTranscribe without a
// preceding BeginUtterance.
var ErrNoUtterance = errors.New("transcribe: no utterance in progress")

// Sink receives completed transcriptions. wavAudio, when non-nil, is the
// decoded window as 16-bit PCM in a RIFF/WAVE container.
type Sink interface {
	OnTranscription(text string, wavAudio []byte)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(text string, wavAudio []byte)

// OnTranscription implements Sink.
func (f SinkFunc) OnTranscription(text string, wavAudio []byte) { f(text, wavAudio) }

// MultiSink fans a delivery out to several sinks in order.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(text string, wavAudio []byte) {
		for _, s := range sinks {
			s.OnTranscription(text, wavAudio)
		}
	})
}

// ModelLoader loads the inference engine and vocabulary. It runs once,
// during the Idle -> LoadingModel -> Ready transition.
type ModelLoader func(ctx context.Context) (engine.Engine, *ctc.Vocabulary, error)

// Options configures a Scheduler.
type Options struct {
	Accumulator *audio.Accumulator
	Extractor   *mel.Extractor
	Sink        Sink

	SampleRate   int
	Interval     time.Duration // continuous decode cadence
	MinAudio     time.Duration // continuous-mode gate
	RMSGate      float64       // 0 disables the energy gate
	IncludeAudio bool          // attach WAV bytes to deliveries

	// PushToTalk disables the continuous tick source entirely; decoding
	// happens only through BeginUtterance/EndUtteranceAndTranscribe.
	PushToTalk bool

	// Ticks overrides the interval ticker; used by tests to drive the
	// loop deterministically.
	Ticks <-chan time.Time
}

// Scheduler orchestrates accumulator, extractor, engine, and decoder under
// a single-flight, minimum-duration policy.
type Scheduler struct {
	acc  *audio.Accumulator
	ext  *mel.Extractor
	sink Sink
	opts Options

	eng   engine.Engine
	vocab *ctc.Vocabulary

	state     atomic.Int32
	inFlight  atomic.Bool
	utterance atomic.Bool

	mu     sync.Mutex // guards cancel/done across Start/Stop
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler in the Idle state.
func NewScheduler(opts Options) *Scheduler {
	return &Scheduler{
		acc:  opts.Accumulator,
		ext:  opts.Extractor,
		sink: opts.Sink,
		opts: opts,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Load runs the model loader, moving Idle -> LoadingModel -> Ready.
// A load failure returns to Idle; it is fatal to session start and is
// never retried here.
func (s *Scheduler) Load(ctx context.Context, load ModelLoader) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateLoadingModel)) {
		return fmt.Errorf("transcribe: cannot load model from state %s", s.State())
	}

	eng, vocab, err := load(ctx)
	if err != nil {
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("transcribe: loading model: %w", err)
	}

	s.eng = eng
	s.vocab = vocab
	s.state.Store(int32(StateReady))
	slog.Info("model loaded", "vocabSize", vocab.Size())
	return nil
}

// Start begins the continuous listening loop. Ready -> Listening.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateReady), int32(StateListening)) {
		return fmt.Errorf("transcribe: cannot start from state %s", s.State())
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	ticks := s.opts.Ticks
	var ticker *time.Ticker
	if s.opts.PushToTalk {
		// No tick source at all: a nil channel never fires, so the loop
		// only waits for shutdown and audio between utterances is ignored.
		ticks = nil
	} else if ticks == nil {
		ticker = time.NewTicker(s.opts.Interval)
		ticks = ticker.C
	}

	go s.run(runCtx, ticker, ticks)
	return nil
}

// Stop halts the listening loop and waits for any in-flight cycle to
// finish. Its result is discarded; no partial decode is surfaced.
// Listening -> Ready.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if State(s.state.Load()) != StateListening {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.wg.Wait()

	s.utterance.Store(false)
	s.state.Store(int32(StateReady))
}

// Close stops the scheduler and releases the engine. Any state -> Idle.
func (s *Scheduler) Close() error {
	s.Stop()
	s.state.Store(int32(StateIdle))
	if s.eng != nil {
		err := s.eng.Close()
		s.eng = nil
		return err
	}
	return nil
}

func (s *Scheduler) run(ctx context.Context, ticker *time.Ticker, ticks <-chan time.Time) {
	defer close(s.done)
	if ticker != nil {
		defer ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			s.onTick(ctx)
		}
	}
}

// onTick starts one continuous-mode cycle unless one is already running or
// an explicit utterance is being captured. The cycle runs off the loop
// goroutine so a slow inference never blocks tick intake: later ticks are
// observed and skipped rather than queued.
func (s *Scheduler) onTick(ctx context.Context) {
	if s.utterance.Load() {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		slog.Debug("tick skipped, cycle in flight")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		s.continuousCycle(ctx)
	}()
}

// continuousCycle gates and runs one decode over the current sliding
// window. The accumulator is not cleared: successive windows overlap, so
// downstream consumers see repeated partial text by design of the mode.
func (s *Scheduler) continuousCycle(ctx context.Context) {
	samples := s.acc.Snapshot()

	minSamples := int(s.opts.MinAudio.Seconds() * float64(s.opts.SampleRate))
	if len(samples) < minSamples {
		slog.Debug("below minimum duration, skipping",
			"samples", len(samples), "min", minSamples)
		return
	}
	if s.opts.RMSGate > 0 {
		if level := audio.RMS(samples); level < s.opts.RMSGate {
			slog.Debug("below energy gate, skipping", "rms", level)
			return
		}
	}

	s.runCycle(ctx, samples)
}

// BeginUtterance clears the buffer and starts explicit (push-to-talk)
// capture. Continuous ticks are suppressed until the utterance ends.
func (s *Scheduler) BeginUtterance() error {
	if State(s.state.Load()) != StateListening {
		return fmt.Errorf("transcribe: cannot begin utterance from state %s", s.State())
	}
	s.acc.Clear()
	s.utterance.Store(true)
	slog.Debug("utterance started")
	return nil
}

// EndUtteranceAndTranscribe decodes exactly the captured segment,
// bypassing the minimum-duration gate. An empty decode is simply not
// delivered. Returns ErrBusy if another cycle is still in flight; the
// utterance remains pending and the call can be retried.
func (s *Scheduler) EndUtteranceAndTranscribe(ctx context.Context) (string, error) {
	if !s.utterance.Load() {
		return "", ErrNoUtterance
	}
	// The busy check comes before the utterance is consumed: after ErrBusy
	// the capture stays pending so the caller can retry once the in-flight
	// cycle finishes.
	if !s.inFlight.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer s.inFlight.Store(false)
	if !s.utterance.CompareAndSwap(true, false) {
		return "", ErrNoUtterance
	}

	samples := s.acc.Snapshot()
	s.acc.Clear()
	return s.runCycle(ctx, samples), nil
}

// runCycle executes extraction -> inference -> decode on one audio window
// and delivers non-empty text to the sink. Failures abandon the cycle and
// are logged; the session continues.
func (s *Scheduler) runCycle(ctx context.Context, samples []float32) string {
	start := time.Now()

	if expected := mel.FrameCount(len(samples)); expected > mel.ModelFrames {
		slog.Warn("audio window exceeds model frame length, tail dropped",
			"frames", expected, "max", mel.ModelFrames)
	}
	feats := s.ext.Extract(samples)

	logits, err := s.eng.Infer(ctx, feats.Data, feats.Mask)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("inference failed, cycle abandoned", "err", err)
		}
		return ""
	}

	ids, err := ctc.GreedyDecode(logits.Data, logits.TimeSteps, logits.VocabSize)
	if err != nil {
		slog.Error("decode failed, cycle abandoned", "err", err)
		return ""
	}
	text := s.vocab.Detokenize(ids)

	slog.Debug("cycle complete",
		"samples", len(samples),
		"validFrames", feats.ValidFrames,
		"tokens", len(ids),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if text == "" {
		return ""
	}
	if ctx.Err() != nil {
		// Stopping: the cycle completed but its result is discarded.
		return ""
	}

	var wavBytes []byte
	if s.opts.IncludeAudio {
		wavBytes, err = audio.EncodeWAV(samples, s.opts.SampleRate)
		if err != nil {
			slog.Warn("wav encode failed, delivering text only", "err", err)
			wavBytes = nil
		}
	}
	s.sink.OnTranscription(text, wavBytes)
	return text
}
