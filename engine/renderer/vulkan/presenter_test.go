package vulkan

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

type fakeFence struct {
	signaled bool
	pending  bool
}

// fakeTimeline models the GPU for a set of frame slots. Submitted work
// completes when its fence is waited on. Any call that would hang or misuse a
// fence on real hardware is reported as an error.
type fakeTimeline struct {
	t          *testing.T
	fences     []fakeFence
	images     uint32
	nextImage  uint32
	acquire    []vk.Result
	present    []vk.Result
	submitErr  error
	zeroSized  bool
	rebuilds   int
	calls      []string
	recorded   []int
	lastWaited int
}

func newFakeTimeline(t *testing.T, frames int) *fakeTimeline {
	f := &fakeTimeline{t: t, fences: make([]fakeFence, frames), images: 3, lastWaited: -1}
	for i := range f.fences {
		f.fences[i].signaled = true
	}
	return f
}

func (f *fakeTimeline) WaitForFrame(frame int, timeout uint64) error {
	f.calls = append(f.calls, fmt.Sprintf("wait:%d", frame))
	fence := &f.fences[frame]
	if fence.pending {
		fence.pending = false
		fence.signaled = true
	}
	if !fence.signaled {
		return core.NewSubmissionError("fence wait timed out after %dns", timeout)
	}
	f.lastWaited = frame
	return nil
}

func (f *fakeTimeline) ResetFrame(frame int) error {
	f.calls = append(f.calls, fmt.Sprintf("reset:%d", frame))
	if f.lastWaited != frame {
		f.t.Errorf("reset of frame %d without waiting on it first", frame)
	}
	if !f.fences[frame].signaled {
		f.t.Errorf("reset of unsignaled fence on frame %d", frame)
	}
	f.fences[frame].signaled = false
	return nil
}

func pop(results *[]vk.Result) vk.Result {
	if len(*results) == 0 {
		return vk.Success
	}
	r := (*results)[0]
	*results = (*results)[1:]
	return r
}

func (f *fakeTimeline) AcquireImage(frame int) (uint32, vk.Result) {
	f.calls = append(f.calls, fmt.Sprintf("acquire:%d", frame))
	res := pop(&f.acquire)
	if res != vk.Success && res != vk.Suboptimal {
		return 0, res
	}
	idx := f.nextImage
	f.nextImage = (f.nextImage + 1) % f.images
	return idx, res
}

func (f *fakeTimeline) RecordFrame(frame int, imageIndex uint32, draw DrawFunc) error {
	f.calls = append(f.calls, fmt.Sprintf("record:%d", frame))
	f.recorded = append(f.recorded, frame)
	if draw != nil {
		draw(nil)
	}
	return nil
}

func (f *fakeTimeline) SubmitFrame(frame int) error {
	f.calls = append(f.calls, fmt.Sprintf("submit:%d", frame))
	if f.submitErr != nil {
		return f.submitErr
	}
	fence := &f.fences[frame]
	if fence.signaled || fence.pending {
		f.t.Errorf("submit on frame %d with a fence that was not reset", frame)
	}
	fence.pending = true
	return nil
}

func (f *fakeTimeline) PresentImage(frame int, imageIndex uint32) vk.Result {
	f.calls = append(f.calls, fmt.Sprintf("present:%d", frame))
	return pop(&f.present)
}

func (f *fakeTimeline) Rebuild() error {
	f.calls = append(f.calls, "rebuild")
	if f.zeroSized {
		return errSurfaceZeroSized
	}
	f.rebuilds++
	return nil
}

func TestPresenterFrameIndexCycles(t *testing.T) {
	for _, frames := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("N=%d", frames), func(t *testing.T) {
			gpu := newFakeTimeline(t, frames)
			p := newPresenter(gpu, frames, DefaultFenceTimeout)

			for m := 0; m < 10; m++ {
				if got := p.CurrentFrame(); got != m%frames {
					t.Fatalf("after %d frames CurrentFrame() = %d, want %d", m, got, m%frames)
				}
				res, err := p.Present(func(vk.CommandBuffer) {})
				if err != nil || res != FramePresented {
					t.Fatalf("Present() #%d = %s, %v", m, res, err)
				}
				if p.State() != PresentIdle {
					t.Fatalf("State() = %s after present, want idle", p.State())
				}
			}
			for i, frame := range gpu.recorded {
				if frame != i%frames {
					t.Fatalf("frame %d recorded into slot %d, want %d", i, frame, i%frames)
				}
			}
			if p.FramesPresented() != 10 {
				t.Fatalf("FramesPresented() = %d, want 10", p.FramesPresented())
			}
		})
	}
}

func TestPresenterFenceDiscipline(t *testing.T) {
	gpu := newFakeTimeline(t, DefaultFramesInFlight)
	p := newPresenter(gpu, DefaultFramesInFlight, DefaultFenceTimeout)

	for i := 0; i < 2; i++ {
		if _, err := p.Present(nil); err != nil {
			t.Fatalf("Present() error = %v", err)
		}
	}
	want := []string{
		"wait:0", "acquire:0", "reset:0", "record:0", "submit:0", "present:0",
		"wait:1", "acquire:1", "reset:1", "record:1", "submit:1", "present:1",
	}
	if fmt.Sprint(gpu.calls) != fmt.Sprint(want) {
		t.Fatalf("calls = %v\nwant    %v", gpu.calls, want)
	}
}

func TestPresenterAcquireOutOfDate(t *testing.T) {
	gpu := newFakeTimeline(t, DefaultFramesInFlight)
	p := newPresenter(gpu, DefaultFramesInFlight, DefaultFenceTimeout)
	if _, err := p.Present(nil); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	gpu.acquire = []vk.Result{vk.ErrorOutOfDate}
	gpu.calls = nil
	res, err := p.Present(nil)
	if err != nil || res != FrameRecreated {
		t.Fatalf("Present() = %s, %v, want recreated", res, err)
	}
	if p.CurrentFrame() != 1 {
		t.Fatalf("CurrentFrame() = %d after out-of-date acquire, want 1", p.CurrentFrame())
	}
	if gpu.rebuilds != 1 {
		t.Fatalf("rebuilds = %d, want 1", gpu.rebuilds)
	}
	if want := []string{"wait:1", "acquire:1", "rebuild"}; fmt.Sprint(gpu.calls) != fmt.Sprint(want) {
		t.Fatalf("calls = %v, want %v", gpu.calls, want)
	}
	if !errors.Is(p.LastInvalidation(), core.ErrSwapchainInvalidated) {
		t.Fatalf("LastInvalidation() = %v, want ErrSwapchainInvalidated", p.LastInvalidation())
	}

	// The fence was never reset, so the retried frame must not block.
	res, err = p.Present(nil)
	if err != nil || res != FramePresented {
		t.Fatalf("retry Present() = %s, %v", res, err)
	}
	if p.CurrentFrame() != 0 {
		t.Fatalf("CurrentFrame() = %d after retry, want 0", p.CurrentFrame())
	}
}

func TestPresenterAcquireSuboptimal(t *testing.T) {
	gpu := newFakeTimeline(t, DefaultFramesInFlight)
	gpu.acquire = []vk.Result{vk.Suboptimal}
	p := newPresenter(gpu, DefaultFramesInFlight, DefaultFenceTimeout)

	res, err := p.Present(nil)
	if err != nil || res != FramePresented {
		t.Fatalf("Present() = %s, %v, want presented", res, err)
	}
	if gpu.rebuilds != 0 || p.CurrentFrame() != 1 {
		t.Fatalf("rebuilds = %d, CurrentFrame() = %d; want 0, 1", gpu.rebuilds, p.CurrentFrame())
	}
}

func TestPresenterPresentInvalidated(t *testing.T) {
	for _, result := range []vk.Result{vk.ErrorOutOfDate, vk.Suboptimal} {
		t.Run(VulkanResultString(result), func(t *testing.T) {
			gpu := newFakeTimeline(t, DefaultFramesInFlight)
			gpu.present = []vk.Result{result}
			p := newPresenter(gpu, DefaultFramesInFlight, DefaultFenceTimeout)

			res, err := p.Present(nil)
			if err != nil || res != FrameRecreated {
				t.Fatalf("Present() = %s, %v, want recreated", res, err)
			}
			if p.CurrentFrame() != 0 {
				t.Fatalf("CurrentFrame() = %d, want 0", p.CurrentFrame())
			}
			if gpu.rebuilds != 1 {
				t.Fatalf("rebuilds = %d, want 1", gpu.rebuilds)
			}

			// Same slot again: its submitted work completes on wait.
			res, err = p.Present(nil)
			if err != nil || res != FramePresented {
				t.Fatalf("Present() after rebuild = %s, %v", res, err)
			}
			if p.CurrentFrame() != 1 {
				t.Fatalf("CurrentFrame() = %d, want 1", p.CurrentFrame())
			}
		})
	}
}

func TestPresenterStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		acquire []vk.Result
		present []vk.Result
		want    []PresentState
	}{
		{
			name: "presented",
			want: []PresentState{PresentAcquiring, PresentRecording, PresentSubmitted, PresentPresenting, PresentIdle},
		},
		{
			name:    "acquire out of date",
			acquire: []vk.Result{vk.ErrorOutOfDate},
			want:    []PresentState{PresentAcquiring, PresentInvalidated, PresentResizing, PresentIdle},
		},
		{
			name:    "present suboptimal",
			present: []vk.Result{vk.Suboptimal},
			want: []PresentState{PresentAcquiring, PresentRecording, PresentSubmitted, PresentPresenting,
				PresentInvalidated, PresentResizing, PresentIdle},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gpu := newFakeTimeline(t, DefaultFramesInFlight)
			gpu.acquire = tt.acquire
			gpu.present = tt.present
			p := newPresenter(gpu, DefaultFramesInFlight, DefaultFenceTimeout)

			var got []PresentState
			p.onTransition = func(from, to PresentState) {
				got = append(got, to)
			}
			if _, err := p.Present(nil); err != nil {
				t.Fatalf("Present() error = %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Fatalf("transitions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPresenterFatalIsSticky(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeTimeline)
	}{
		{"acquire device lost", func(f *fakeTimeline) { f.acquire = []vk.Result{vk.ErrorDeviceLost} }},
		{"present device lost", func(f *fakeTimeline) { f.present = []vk.Result{vk.ErrorDeviceLost} }},
		{"submit failure", func(f *fakeTimeline) {
			f.submitErr = core.NewSubmissionError("queue submit: VK_ERROR_OUT_OF_DEVICE_MEMORY")
		}},
		{"fence timeout", func(f *fakeTimeline) { f.fences[0] = fakeFence{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gpu := newFakeTimeline(t, DefaultFramesInFlight)
			tt.setup(gpu)
			p := newPresenter(gpu, DefaultFramesInFlight, DefaultFenceTimeout)

			_, err := p.Present(nil)
			if !errors.Is(err, core.ErrSubmission) {
				t.Fatalf("Present() error = %v, want submission error", err)
			}
			if !core.IsFatal(err) {
				t.Fatalf("IsFatal(%v) = false", err)
			}

			calls := len(gpu.calls)
			_, again := p.Present(nil)
			if again != err {
				t.Fatalf("second Present() error = %v, want the first error", again)
			}
			if len(gpu.calls) != calls {
				t.Fatalf("Present() touched the GPU after a fatal error")
			}
		})
	}
}

func TestPresenterResizeAndMinimize(t *testing.T) {
	gpu := newFakeTimeline(t, DefaultFramesInFlight)
	p := newPresenter(gpu, DefaultFramesInFlight, DefaultFenceTimeout)

	var listener core.ResizeListener = p
	listener.OnResize(0, 0)
	gpu.zeroSized = true

	for i := 0; i < 3; i++ {
		res, err := p.Present(nil)
		if err != nil || res != FrameSkipped {
			t.Fatalf("Present() while minimized = %s, %v, want skipped", res, err)
		}
	}
	if len(gpu.recorded) != 0 {
		t.Fatalf("recorded %d frames while minimized", len(gpu.recorded))
	}

	gpu.zeroSized = false
	listener.OnResize(800, 600)
	if res, err := p.Present(nil); err != nil || res != FrameRecreated {
		t.Fatalf("Present() after restore = %s, %v, want recreated", res, err)
	}
	if res, err := p.Present(nil); err != nil || res != FramePresented {
		t.Fatalf("Present() = %s, %v, want presented", res, err)
	}
	if gpu.rebuilds != 1 || p.Rebuilds() != 1 {
		t.Fatalf("rebuilds = %d/%d, want 1", gpu.rebuilds, p.Rebuilds())
	}
}

func TestPresentStateString(t *testing.T) {
	if PresentResizing.String() != "resizing" || PresentState(99).String() != "unknown" {
		t.Fatalf("unexpected state names %q %q", PresentResizing, PresentState(99))
	}
}
