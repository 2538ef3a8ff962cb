package vulkan

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

type PresentState int

const (
	PresentIdle PresentState = iota
	PresentAcquiring
	PresentRecording
	PresentSubmitted
	PresentPresenting
	PresentInvalidated
	PresentResizing
)

var presentStateNames = [...]string{
	PresentIdle:        "idle",
	PresentAcquiring:   "acquiring",
	PresentRecording:   "recording",
	PresentSubmitted:   "submitted",
	PresentPresenting:  "presenting",
	PresentInvalidated: "invalidated",
	PresentResizing:    "resizing",
}

func (s PresentState) String() string {
	if s < 0 || int(s) >= len(presentStateNames) {
		return "unknown"
	}
	return presentStateNames[s]
}

// FrameResult tells the caller what a Present call did with the frame.
type FrameResult int

const (
	// FramePresented means the frame was drawn and queued for presentation.
	FramePresented FrameResult = iota
	// FrameRecreated means the swapchain was rebuilt and nothing was shown.
	FrameRecreated
	// FrameSkipped means nothing happened, usually because the window has no
	// area to draw into.
	FrameSkipped
)

func (r FrameResult) String() string {
	switch r {
	case FramePresented:
		return "presented"
	case FrameRecreated:
		return "recreated"
	case FrameSkipped:
		return "skipped"
	}
	return "unknown"
}

// DrawFunc records draw commands inside the frame's render pass.
type DrawFunc func(cmd vk.CommandBuffer)

// errSurfaceZeroSized is returned by a rebuild while the window is minimized.
var errSurfaceZeroSized = errors.New("surface has zero area")

// frameBackend is the GPU side of a frame, addressed by slot index.
type frameBackend interface {
	WaitForFrame(frame int, timeout uint64) error
	ResetFrame(frame int) error
	AcquireImage(frame int) (uint32, vk.Result)
	RecordFrame(frame int, imageIndex uint32, draw DrawFunc) error
	SubmitFrame(frame int) error
	PresentImage(frame int, imageIndex uint32) vk.Result
	Rebuild() error
}

// Presenter drives the acquire, record, submit and present cycle over a
// fixed number of frame slots and routes invalidation into a rebuild.
type Presenter struct {
	backend      frameBackend
	frames       int
	fenceTimeout uint64

	currentFrame int
	state        PresentState
	resize       atomic.Bool
	fatal        error

	presented      uint64
	rebuilds       uint64
	lastInvalidate error

	// onTransition, when set, sees every state change in order.
	onTransition func(from, to PresentState)
}

func newPresenter(backend frameBackend, frames int, fenceTimeout uint64) *Presenter {
	return &Presenter{
		backend:      backend,
		frames:       frames,
		fenceTimeout: fenceTimeout,
		state:        PresentIdle,
	}
}

func (p *Presenter) State() PresentState {
	return p.state
}

// CurrentFrame is the slot the next Present records into.
func (p *Presenter) CurrentFrame() int {
	return p.currentFrame
}

func (p *Presenter) FramesPresented() uint64 {
	return p.presented
}

func (p *Presenter) Rebuilds() uint64 {
	return p.rebuilds
}

// LastInvalidation returns the most recent out-of-date or suboptimal result,
// marked as ErrSwapchainInvalidated, or nil.
func (p *Presenter) LastInvalidation() error {
	return p.lastInvalidate
}

// OnResize flags the swapchain for a rebuild before the next frame. It is
// safe to call from the window callback.
func (p *Presenter) OnResize(width, height uint32) {
	core.LogDebug("Resize to %dx%d requested.", width, height)
	p.resize.Store(true)
}

// Present renders and presents one frame. Invalidation is reported as
// FrameRecreated, never as an error. Once Present fails every later call
// returns the same error.
func (p *Presenter) Present(draw DrawFunc) (FrameResult, error) {
	if p.fatal != nil {
		return FrameSkipped, p.fatal
	}
	if p.resize.Load() {
		return p.rebuild()
	}

	frame := p.currentFrame
	p.setState(PresentAcquiring)
	if err := p.backend.WaitForFrame(frame, p.fenceTimeout); err != nil {
		return p.fail(errors.Wrapf(err, "frame %d", frame))
	}

	imageIndex, res := p.backend.AcquireImage(frame)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		// The fence is still signaled, so the retried frame will not block.
		p.invalidate(res, "acquire next image")
		return p.rebuild()
	default:
		return p.fail(core.NewSubmissionError("acquire next image: %s", VulkanResultString(res)))
	}

	if err := p.backend.ResetFrame(frame); err != nil {
		return p.fail(err)
	}

	p.setState(PresentRecording)
	if err := p.backend.RecordFrame(frame, imageIndex, draw); err != nil {
		return p.fail(err)
	}
	if err := p.backend.SubmitFrame(frame); err != nil {
		return p.fail(err)
	}
	p.setState(PresentSubmitted)

	p.setState(PresentPresenting)
	switch res := p.backend.PresentImage(frame, imageIndex); res {
	case vk.Success:
	case vk.ErrorOutOfDate, vk.Suboptimal:
		p.invalidate(res, "queue present")
		return p.rebuild()
	default:
		return p.fail(core.NewSubmissionError("queue present: %s", VulkanResultString(res)))
	}

	p.currentFrame = (p.currentFrame + 1) % p.frames
	p.presented++
	p.setState(PresentIdle)
	return FramePresented, nil
}

func (p *Presenter) setState(s PresentState) {
	if p.onTransition != nil {
		p.onTransition(p.state, s)
	}
	p.state = s
}

func (p *Presenter) invalidate(res vk.Result, op string) {
	p.setState(PresentInvalidated)
	p.lastInvalidate = errors.Mark(errors.Newf("%s: %s", op, VulkanResultString(res)), core.ErrSwapchainInvalidated)
	core.LogDebug("Swapchain invalidated: %v", p.lastInvalidate)
}

func (p *Presenter) rebuild() (FrameResult, error) {
	p.setState(PresentResizing)
	p.resize.Store(false)
	err := p.backend.Rebuild()
	if errors.Is(err, errSurfaceZeroSized) {
		p.resize.Store(true)
		p.setState(PresentIdle)
		return FrameSkipped, nil
	}
	if err != nil {
		return p.fail(errors.Wrap(err, "rebuild swapchain"))
	}
	p.rebuilds++
	p.setState(PresentIdle)
	return FrameRecreated, nil
}

func (p *Presenter) fail(err error) (FrameResult, error) {
	core.LogError("Presentation failed in state %s: %v", p.state, err)
	p.fatal = err
	return FrameSkipped, err
}
