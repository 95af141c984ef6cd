package camera

import (
	"sync"
	"time"
)

// Frame is one captured, JPEG-encoded video frame.
type Frame struct {
	// Seq increases by one for every frame a stream publishes.
	Seq uint64

	// JPEG holds the encoded image.
	JPEG []byte

	Width  int
	Height int

	CapturedAt time.Time
}

// State describes whether a stream is producing frames.
type State string

const (
	// StateActive means frames are flowing.
	StateActive State = "active"
	// StatePaused means the device is open but frames stopped arriving.
	StatePaused State = "paused"
	// StateEnded means the stream is gone for good.
	StateEnded State = "ended"
)

// Stream is a live capture bound to a Surface.
type Stream interface {
	// Frames delivers each new frame. The channel holds at most one frame;
	// a frame the consumer hasn't taken yet is replaced by a newer one.
	// The channel is closed when the stream stops.
	Frames() <-chan Frame

	// Surface returns the rendering surface frames are published to.
	Surface() *Surface

	// Width and Height report the negotiated resolution.
	Width() int
	Height() int

	// State reports the stream state.
	State() State

	// Name returns the backend name (e.g., "gocv", "v4l2", "mock").
	Name() string

	// Stop halts capture and releases the device.
	// It is safe to call Stop multiple times.
	Stop() error
}

// Surface holds the most recent frame of a stream and fans it out to
// preview subscribers. It plays the role of a video element: anything
// that wants "the current frame" samples it from here.
type Surface struct {
	mu     sync.RWMutex
	latest Frame
	has    bool
	state  State

	subMu  sync.Mutex
	subs   map[int]func(Frame)
	nextID int
}

// NewSurface creates an empty surface in the paused state.
func NewSurface() *Surface {
	return &Surface{
		state: StatePaused,
		subs:  make(map[int]func(Frame)),
	}
}

// Publish stores f as the latest frame, marks the surface active and
// notifies subscribers.
func (s *Surface) Publish(f Frame) {
	s.mu.Lock()
	s.latest = f
	s.has = true
	if s.state != StateEnded {
		s.state = StateActive
	}
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]func(Frame), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(f)
	}
}

// Latest returns the most recent frame, if any.
func (s *Surface) Latest() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.has
}

// State returns the surface state.
func (s *Surface) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState updates the surface state. Ended is final.
func (s *Surface) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return
	}
	s.state = state
}

// Subscribe registers fn to be called with every published frame.
// fn runs on the capture goroutine and must not block.
func (s *Surface) Subscribe(fn func(Frame)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// pump is the plumbing shared by the backends: a latest-wins frame channel,
// a surface, and a stop signal honored by the capture goroutine. The
// capture goroutine owns the channel and closes it via finish.
type pump struct {
	surface *Surface
	frames  chan Frame
	stopCh  chan struct{}
	doneCh  chan struct{}

	stopOnce sync.Once
	seq      uint64
	width    int
	height   int
}

func newPump(width, height int) *pump {
	return &pump{
		surface: NewSurface(),
		frames:  make(chan Frame, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		width:   width,
		height:  height,
	}
}

// publish hands a frame to the surface and the frame channel.
// Called only from the capture goroutine.
func (p *pump) publish(jpeg []byte, width, height int) {
	p.seq++
	f := Frame{
		Seq:        p.seq,
		JPEG:       jpeg,
		Width:      width,
		Height:     height,
		CapturedAt: time.Now(),
	}
	p.surface.Publish(f)

	select {
	case p.frames <- f:
		return
	default:
	}
	// Drop the stale frame the consumer hasn't taken yet.
	select {
	case <-p.frames:
	default:
	}
	select {
	case p.frames <- f:
	default:
	}
}

// stopping reports whether Stop has been requested.
func (p *pump) stopping() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

// finish marks the stream ended and closes the frame channel.
// Called once, by the capture goroutine on exit.
func (p *pump) finish() {
	p.surface.SetState(StateEnded)
	close(p.frames)
	close(p.doneCh)
}

// stop signals the capture goroutine and waits for it to exit.
func (p *pump) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

func (p *pump) Frames() <-chan Frame { return p.frames }
func (p *pump) Surface() *Surface    { return p.surface }
func (p *pump) Width() int           { return p.width }
func (p *pump) Height() int          { return p.height }
func (p *pump) State() State         { return p.surface.State() }
