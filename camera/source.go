// Package camera implements the Frame Source (C1): exclusive ownership
// of one camera device, a lazy stream of RawFrame values for the
// analysis pipeline, and a separate preview feed (§4.1).
package camera

import (
	"log"
	"sync"
	"time"

	"github.com/tomeksn/fitnessmirror/media"
)

// Config mirrors §4.1's enumerated configuration. Resolution policy
// ("HighestAvailableWith16x9") is a device negotiation concern the
// original Android CameraX layer owned; here it is a concrete value the
// embedder supplies, since a V4L2/gocv capture has no portable
// equivalent of "enumerate and pick the best 16:9 mode".
type Config struct {
	PreviewWidth, PreviewHeight   int
	AnalysisWidth, AnalysisHeight int

	// LensDeviceIndex maps a logical Lens to a gocv/V4L2 device index.
	LensDeviceIndex map[media.Lens]int

	Open OpenFunc // overridable for tests; defaults to openGoCV

	SwitchWaitTimeout time.Duration
	RetryDelays       []time.Duration // backoff schedule for transient open failures
}

// DefaultConfig returns the defaults named in §4.1 and §5.
func DefaultConfig() Config {
	return Config{
		PreviewWidth:      1280,
		PreviewHeight:     720,
		AnalysisWidth:     320,
		AnalysisHeight:    240,
		LensDeviceIndex:   map[media.Lens]int{media.Back: 0, media.Front: 1},
		Open:              openGoCV,
		SwitchWaitTimeout: 500 * time.Millisecond,
		RetryDelays:       []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second},
	}
}

// Source owns at most one camera binding at a time (§5, camera
// exclusivity). execMu is the "single-threaded executor" of §5: every
// lifecycle operation (Open, SwitchLens, SetMode, Close) holds it for
// its whole duration, so no two bindings are ever attempted
// concurrently and callbacks for a given camera never overlap.
type Source struct {
	cfg Config

	execMu sync.Mutex

	mode    media.CameraMode
	lens    media.Lens
	cap     Capture
	bound   bool
	closed  bool
	readerWG sync.WaitGroup

	previewCh  chan *media.RawFrame
	analysisCh chan *media.RawFrame

	// OnReady is invoked exactly once per Open, after the first frame
	// has been produced by the new binding (§4.7's critical ordering
	// rule: the fallback server must not accept sinks before this).
	OnReady func()
}

// NewSource constructs a Source. Frames are available via Preview and
// Analysis after a successful Open.
func NewSource(cfg Config) *Source {
	if cfg.Open == nil {
		cfg.Open = openGoCV
	}
	return &Source{
		cfg:        cfg,
		previewCh:  make(chan *media.RawFrame, 2),
		analysisCh: make(chan *media.RawFrame, 2),
	}
}

// Preview yields frames whenever the source is bound, regardless of
// mode — this is the direct handle to a native surface §9 calls for (no
// wrapping layer buffers frames; the channel itself is the handle).
func (s *Source) Preview() <-chan *media.RawFrame { return s.previewCh }

// Analysis yields frames only while mode == Streaming (§3, Mode-
// consistent analysis invariant).
func (s *Source) Analysis() <-chan *media.RawFrame { return s.analysisCh }

// Open acquires the camera for the given mode and lens (§4.1). Transient
// failures are retried per cfg.RetryDelays; exhausting the budget
// surfaces ErrCameraInitFailed.
func (s *Source) Open(mode media.CameraMode, lens media.Lens) error {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.bound {
		if err := s.unbindLocked(); err != nil {
			log.Printf("[camera] unbind before reopen: %v", err)
		}
	}

	idx, ok := s.cfg.LensDeviceIndex[lens]
	if !ok {
		return ErrLensMissing
	}

	var lastErr error
	attempt := 0
	for {
		cap, err := s.cfg.Open(idx, s.cfg.AnalysisWidth, s.cfg.AnalysisHeight)
		if err == nil {
			s.cap = cap
			s.mode = mode
			s.lens = lens
			s.bound = true
			s.startReaderLocked(true)
			return nil
		}
		lastErr = err
		if attempt >= len(s.cfg.RetryDelays) {
			break
		}
		delay := s.cfg.RetryDelays[attempt]
		log.Printf("[camera] open attempt %d failed: %v; retrying in %s", attempt+1, err, delay)
		time.Sleep(delay)
		attempt++
	}
	log.Printf("[camera] open failed permanently after %d attempts: %v", attempt+1, lastErr)
	return ErrCameraInitFailed
}

// SwitchLens unbinds, waits (bounded) for the device to report closed,
// then rebinds against the other lens using the current mode (§4.1).
// On a single-lens device it returns ErrLensMissing without unbinding
// the current lens (§8 boundary behavior).
func (s *Source) SwitchLens() error {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if !s.bound {
		return ErrClosed
	}
	other := media.Back
	if s.lens == media.Back {
		other = media.Front
	}
	if _, ok := s.cfg.LensDeviceIndex[other]; !ok {
		return ErrLensMissing
	}

	mode := s.mode
	if err := s.unbindLocked(); err != nil {
		log.Printf("[camera] switch_lens unbind: %v", err)
	}
	s.waitClosedLocked()

	idx := s.cfg.LensDeviceIndex[other]
	cap, err := s.cfg.Open(idx, s.cfg.AnalysisWidth, s.cfg.AnalysisHeight)
	if err != nil {
		return err
	}
	s.cap = cap
	s.lens = other
	s.mode = mode
	s.bound = true
	s.startReaderLocked(false)
	return nil
}

// SetMode transitions between PreviewOnly and Streaming, preserving the
// current lens. It is a no-op when the requested mode already matches
// (§8, idempotence law).
func (s *Source) SetMode(mode media.CameraMode) error {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if !s.bound {
		return ErrClosed
	}
	if s.mode == mode {
		return nil
	}

	lens := s.lens
	if err := s.unbindLocked(); err != nil {
		log.Printf("[camera] set_mode unbind: %v", err)
	}
	s.waitClosedLocked()

	idx := s.cfg.LensDeviceIndex[lens]
	cap, err := s.cfg.Open(idx, s.cfg.AnalysisWidth, s.cfg.AnalysisHeight)
	if err != nil {
		return err
	}
	s.cap = cap
	s.lens = lens
	s.mode = mode
	s.bound = true
	s.startReaderLocked(false)
	return nil
}

// CurrentLens reports the bound lens.
func (s *Source) CurrentLens() media.Lens {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	return s.lens
}

// CurrentMode reports the bound mode.
func (s *Source) CurrentMode() media.CameraMode {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	return s.mode
}

// Close releases all camera resources.
func (s *Source) Close() error {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.unbindLocked()
	s.waitClosedLocked()
	return err
}

func (s *Source) unbindLocked() error {
	if !s.bound {
		return nil
	}
	s.bound = false
	cap := s.cap
	s.cap = nil
	return cap.Close()
}

// waitClosedLocked waits for the current reader goroutine to observe
// the closed device, bounded by SwitchWaitTimeout; on timeout it
// proceeds anyway (§4.1).
func (s *Source) waitClosedLocked() {
	done := make(chan struct{})
	go func() {
		s.readerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.SwitchWaitTimeout):
		log.Printf("[camera] switch wait timed out after %s; proceeding", s.cfg.SwitchWaitTimeout)
	}
}

// startReaderLocked starts the frame reader for the current binding.
// notifyReady is true only for a binding made by Open, so OnReady fires
// once per Open and not again on a lens switch or mode change.
func (s *Source) startReaderLocked(notifyReady bool) {
	cap := s.cap
	mode := s.mode
	s.readerWG.Add(1)
	first := notifyReady
	go func() {
		defer s.readerWG.Done()
		for {
			frame, ok := cap.ReadFrame()
			if !ok {
				return
			}
			if first {
				first = false
				if s.OnReady != nil {
					s.OnReady()
				}
			}
			select {
			case s.previewCh <- frame:
			default:
			}
			if mode == media.Streaming {
				select {
				case s.analysisCh <- frame:
				default:
				}
			}
		}
	}()
}
