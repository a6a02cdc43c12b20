package camera

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomeksn/fitnessmirror/media"
)

type fakeCapture struct {
	mu     sync.Mutex
	closed bool
	frame  func() *media.RawFrame
}

func (f *fakeCapture) ReadFrame() (*media.RawFrame, bool) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, false
	}
	f.mu.Unlock()
	time.Sleep(time.Millisecond)
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, false
	}
	return f.frame(), true
}

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testFrame() *media.RawFrame {
	return &media.RawFrame{
		Width: 4, Height: 2,
		Y: media.Plane{Data: make([]byte, 8), RowStride: 4, PixelStride: 1},
		U: media.Plane{Data: make([]byte, 2), RowStride: 2, PixelStride: 1},
		V: media.Plane{Data: make([]byte, 2), RowStride: 2, PixelStride: 1},
	}
}

func testConfig(opens *int32) Config {
	cfg := DefaultConfig()
	cfg.RetryDelays = nil
	cfg.SwitchWaitTimeout = 50 * time.Millisecond
	cfg.Open = func(lensIndex, w, h int) (Capture, error) {
		if opens != nil {
			atomic.AddInt32(opens, 1)
		}
		return &fakeCapture{frame: testFrame}, nil
	}
	return cfg
}

func TestOpenAndCloseReleases(t *testing.T) {
	s := NewSource(testConfig(nil))
	if err := s.Open(media.Streaming, media.Back); err != nil {
		t.Fatalf("open: %v", err)
	}
	select {
	case <-s.Analysis():
	case <-time.After(time.Second):
		t.Fatal("expected an analysis frame in Streaming mode")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPreviewOnlyHasNoAnalysisFrames(t *testing.T) {
	s := NewSource(testConfig(nil))
	if err := s.Open(media.PreviewOnly, media.Back); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	select {
	case <-s.Preview():
	case <-time.After(time.Second):
		t.Fatal("expected a preview frame")
	}
	select {
	case <-s.Analysis():
		t.Fatal("did not expect an analysis frame in PreviewOnly mode")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSetModeIdempotent(t *testing.T) {
	var opens int32
	s := NewSource(testConfig(&opens))
	if err := s.Open(media.Streaming, media.Back); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	before := atomic.LoadInt32(&opens)
	if err := s.SetMode(media.Streaming); err != nil {
		t.Fatalf("set_mode: %v", err)
	}
	after := atomic.LoadInt32(&opens)
	if before != after {
		t.Fatalf("expected no rebind for idempotent SetMode, opens went %d -> %d", before, after)
	}
}

func TestSwitchLensSingleLensDevice(t *testing.T) {
	s := NewSource(testConfig(nil))
	s.cfg.LensDeviceIndex = map[media.Lens]int{media.Back: 0}
	if err := s.Open(media.Streaming, media.Back); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.SwitchLens(); !errors.Is(err, ErrLensMissing) {
		t.Fatalf("expected ErrLensMissing, got %v", err)
	}
	if s.CurrentLens() != media.Back {
		t.Fatalf("expected lens to remain Back after failed switch")
	}
}

func TestSwitchLensRebinds(t *testing.T) {
	s := NewSource(testConfig(nil))
	if err := s.Open(media.Streaming, media.Back); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.SwitchLens(); err != nil {
		t.Fatalf("switch_lens: %v", err)
	}
	if s.CurrentLens() != media.Front {
		t.Fatalf("expected Front lens after switch")
	}
	if s.CurrentMode() != media.Streaming {
		t.Fatalf("expected mode preserved across switch")
	}
}

func TestOpenRetriesThenFails(t *testing.T) {
	cfg := testConfig(nil)
	cfg.RetryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	var attempts int32
	cfg.Open = func(lensIndex, w, h int) (Capture, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("device busy")
	}
	s := NewSource(cfg)
	err := s.Open(media.Streaming, media.Back)
	if !errors.Is(err, ErrCameraInitFailed) {
		t.Fatalf("expected ErrCameraInitFailed, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", got)
	}
}
