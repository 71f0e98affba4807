// Package scanner runs one camera scanning session at a time. A single loop
// goroutine owns the session: commands, tickers, timers and worker results
// are all delivered to it as messages, so session state is never shared.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/detect"
	"product-scanner/pkg/metrics"
	"product-scanner/pkg/resolve"
	"product-scanner/pkg/types"
	"product-scanner/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("scanner")
}

var (
	ErrClosed         = errors.New("scanner is closed")
	ErrInvalidState   = errors.New("not allowed in the current state")
	ErrNoSession      = errors.New("camera is not open")
	ErrStreamNotReady = errors.New("camera stream is not ready")
	ErrSessionClosed  = errors.New("session closed before the operation finished")
	ErrInvalidPoint   = errors.New("focus point out of range")
)

// Resolver turns a confirmed code into an artifact, see resolve.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, code string, sample resolve.Sampler) (types.Artifact, error)
}

// Hooks are called on the scanner loop. They must return quickly and must
// not call back into the Scanner.
type Hooks struct {
	OnArtifact func(types.Artifact)
	// OnCode receives every confirmed code before it is resolved.
	OnCode   func(code string)
	OnNotice func(err error)
}

type outcome struct {
	artifact types.Artifact
	ok       bool
	err      error
}

type Scanner struct {
	cfg      Config
	dev      camera.Device
	detector detect.Detector
	resolver Resolver
	hooks    Hooks

	cmds      chan func()
	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	streamLock sync.RWMutex
	stream     camera.Stream

	// owned by the loop
	machine  *fsm.FSM
	sess     *session
	gen      uint64
	mode     Mode
	artifact *types.Artifact
	lastErr  error
	waiters  []chan outcome
}

func New(cfg Config, dev camera.Device, det detect.Detector, res Resolver, hooks Hooks) *Scanner {
	s := &Scanner{
		cfg:      cfg,
		dev:      dev,
		detector: det,
		resolver: res,
		hooks:    hooks,
		cmds:     make(chan func()),
		events:   make(chan func(), 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		mode:     ModePhoto,
	}
	s.machine = newMachine(s.entered)
	metrics.SetState(names(States...), string(StateIdle))

	go s.run()

	return s
}

// Close tears down any session and stops the loop. It waits for every
// goroutine the scanner started.
func (s *Scanner) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
	s.wg.Wait()

	return nil
}

func (s *Scanner) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			s.shutdown()
			logger.Info("scanner stopped")
			return
		case fn := <-s.cmds:
			fn()
		case fn := <-s.events:
			fn()
		}
	}
}

// call runs fn on the loop and returns its error.
func (s *Scanner) call(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.cmds <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}

	return <-errc
}

// await waits for the outcome of an operation started on the loop.
func (s *Scanner) await(ctx context.Context, w chan outcome) (outcome, error) {
	select {
	case o := <-w:
		return o, o.err
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	case <-s.done:
		select {
		case o := <-w:
			return o, o.err
		default:
			return outcome{}, ErrClosed
		}
	}
}

func (s *Scanner) addWaiter() chan outcome {
	w := make(chan outcome, 1)
	s.waiters = append(s.waiters, w)
	return w
}

func (s *Scanner) settle(o outcome) {
	for _, w := range s.waiters {
		w <- o
	}
	s.waiters = nil
}

// post delivers fn to the loop. fn only runs if the session with generation
// gen is still the current one.
func (s *Scanner) post(ctx context.Context, gen uint64, fn func()) {
	select {
	case s.events <- func() {
		if s.sess != nil && s.sess.gen == gen {
			fn()
		}
	}:
	case <-ctx.Done():
	case <-s.done:
	}
}

func (s *Scanner) every(ctx context.Context, gen uint64, d time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-t.C:
				s.post(ctx, gen, fn)
			}
		}
	}()
}

func (s *Scanner) after(ctx context.Context, gen uint64, d time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-s.done:
		case <-t.C:
			s.post(ctx, gen, fn)
		}
	}()
}

// worker runs blocking I/O off the loop.
func (s *Scanner) worker(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Scanner) is(st State) bool {
	return s.machine.Is(string(st))
}

func (s *Scanner) current() State {
	return State(s.machine.Current())
}

func (s *Scanner) transition(ev string) error {
	if !s.machine.Can(ev) {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, ev, s.machine.Current())
	}
	err := s.machine.Event(context.Background(), ev)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return err
	}

	return nil
}

func (s *Scanner) entered(st State) {
	logger.Debugf("state %s", st)
	metrics.SetState(names(States...), string(st))
}

func (s *Scanner) notice(err error) {
	s.lastErr = err
	metrics.Notices.Inc()
	logger.Warnf("%s", err)
	if s.hooks.OnNotice != nil {
		s.hooks.OnNotice(err)
	}
}

// deliver hands a finished artifact to the caller and tears the session down.
func (s *Scanner) deliver(a types.Artifact) {
	s.artifact = &a
	s.lastErr = nil
	s.settle(outcome{artifact: a, ok: true})
	s.teardown()
	logger.Infof("artifact %s (%s, %s, %d bytes)", a.Name, a.MIME, a.Source, a.Size)
	if s.hooks.OnArtifact != nil {
		s.hooks.OnArtifact(a)
	}
}

func (s *Scanner) setStream(st camera.Stream) {
	s.streamLock.Lock()
	defer s.streamLock.Unlock()
	s.stream = st
}

// Frame returns the newest frame of the open session for previews. It is
// safe to call from any goroutine.
func (s *Scanner) Frame() (camera.Frame, bool) {
	s.streamLock.RLock()
	defer s.streamLock.RUnlock()
	if s.stream == nil {
		return camera.Frame{}, false
	}
	return s.stream.Frame()
}

// Current returns the state without going through the loop.
func (s *Scanner) Current() State {
	return s.current()
}
