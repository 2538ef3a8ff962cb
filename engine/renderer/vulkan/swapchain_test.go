package vulkan

import (
	"math"
	"reflect"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

func testCapabilities() vk.SurfaceCapabilities {
	return vk.SurfaceCapabilities{
		MinImageCount:       2,
		MaxImageCount:       8,
		CurrentExtent:       vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent:      vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent:      vk.Extent2D{Width: 4096, Height: 4096},
		MaxImageArrayLayers: 1,
		SupportedTransforms: vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit | vk.SurfaceTransformRotate90Bit),
		CurrentTransform:    vk.SurfaceTransformRotate90Bit,
		SupportedUsageFlags: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit | vk.ImageUsageTransferSrcBit),
	}
}

func testSupport() SwapchainSupport {
	return SwapchainSupport{
		Capabilities: testCapabilities(),
		Formats: []vk.SurfaceFormat{
			{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
			{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox},
	}
}

var defaultPrefs = SwapchainPreferences{
	Format:      vk.FormatR8g8b8a8Unorm,
	PresentMode: vk.PresentModeImmediate,
}

func TestNegotiateExtent(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
		want          vk.Extent2D
	}{
		{"inside range", 100, 100, vk.Extent2D{Width: 100, Height: 100}},
		{"above max", 10000, 10000, vk.Extent2D{Width: 4096, Height: 4096}},
		{"below min", 0, 0, vk.Extent2D{Width: 1, Height: 1}},
		{"mixed", 800, 9000, vk.Extent2D{Width: 800, Height: 4096}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Negotiate(testSupport(), tt.width, tt.height, defaultPrefs)
			if err != nil {
				t.Fatalf("Negotiate() error = %v", err)
			}
			if got.Extent != tt.want {
				t.Errorf("Extent = %+v, want %+v", got.Extent, tt.want)
			}
		})
	}
}

func TestNegotiateUsesCurrentExtent(t *testing.T) {
	support := testSupport()
	support.Capabilities.CurrentExtent = vk.Extent2D{Width: 640, Height: 480}

	got, err := Negotiate(support, 10000, 10000, defaultPrefs)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if want := (vk.Extent2D{Width: 640, Height: 480}); got.Extent != want {
		t.Fatalf("Extent = %+v, want %+v", got.Extent, want)
	}
}

func TestNegotiateDeterministic(t *testing.T) {
	a, errA := Negotiate(testSupport(), 1280, 720, defaultPrefs)
	b, errB := Negotiate(testSupport(), 1280, 720, defaultPrefs)
	if errA != nil || errB != nil {
		t.Fatalf("Negotiate() errors = %v, %v", errA, errB)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Negotiate() not deterministic: %+v vs %+v", a, b)
	}
}

func TestNegotiateFormat(t *testing.T) {
	tests := []struct {
		name           string
		formats        []vk.SurfaceFormat
		wantFormat     vk.Format
		wantColorSpace vk.ColorSpace
	}{
		{
			name:           "undefined means any",
			formats:        []vk.SurfaceFormat{{Format: vk.FormatUndefined, ColorSpace: vk.ColorSpaceSrgbNonlinear}},
			wantFormat:     vk.FormatR8g8b8a8Unorm,
			wantColorSpace: vk.ColorSpaceSrgbNonlinear,
		},
		{
			name: "exact match wins",
			formats: []vk.SurfaceFormat{
				{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
				{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
			},
			wantFormat:     vk.FormatR8g8b8a8Unorm,
			wantColorSpace: vk.ColorSpaceSrgbNonlinear,
		},
		{
			name: "falls back to first",
			formats: []vk.SurfaceFormat{
				{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
				{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
			},
			wantFormat:     vk.FormatB8g8r8a8Srgb,
			wantColorSpace: vk.ColorSpaceSrgbNonlinear,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			support := testSupport()
			support.Formats = tt.formats
			got, err := Negotiate(support, 100, 100, defaultPrefs)
			if err != nil {
				t.Fatalf("Negotiate() error = %v", err)
			}
			if got.Format != tt.wantFormat || got.ColorSpace != tt.wantColorSpace {
				t.Errorf("format = (%d, %d), want (%d, %d)", got.Format, got.ColorSpace, tt.wantFormat, tt.wantColorSpace)
			}
		})
	}
}

func TestNegotiatePresentMode(t *testing.T) {
	tests := []struct {
		name      string
		preferred vk.PresentMode
		available []vk.PresentMode
		want      vk.PresentMode
		wantErr   bool
	}{
		{"immediate preferred and present", vk.PresentModeImmediate, []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}, vk.PresentModeImmediate, false},
		{"mailbox before fifo", vk.PresentModeImmediate, []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}, vk.PresentModeMailbox, false},
		{"fifo last resort", vk.PresentModeImmediate, []vk.PresentMode{vk.PresentModeFifo}, vk.PresentModeFifo, false},
		{"configured preference first", vk.PresentModeFifo, []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeFifo}, vk.PresentModeFifo, false},
		{"none supported", vk.PresentModeImmediate, []vk.PresentMode{vk.PresentModeFifoRelaxed}, 0, true},
		{"empty", vk.PresentModeImmediate, nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			support := testSupport()
			support.PresentModes = tt.available
			got, err := Negotiate(support, 100, 100, SwapchainPreferences{Format: vk.FormatR8g8b8a8Unorm, PresentMode: tt.preferred})
			if tt.wantErr {
				if !errors.Is(err, ErrNoPresentMode) || !errors.Is(err, core.ErrConfiguration) {
					t.Fatalf("Negotiate() error = %v, want ErrNoPresentMode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Negotiate() error = %v", err)
			}
			if got.PresentMode != tt.want {
				t.Errorf("PresentMode = %d, want %d", got.PresentMode, tt.want)
			}
		})
	}
}

func TestNegotiateUsage(t *testing.T) {
	support := testSupport()
	got, err := Negotiate(support, 100, 100, defaultPrefs)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if want := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit); got.Usage != want {
		t.Fatalf("Usage = %#x, want %#x", got.Usage, want)
	}

	support.Capabilities.SupportedUsageFlags = vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	_, err = Negotiate(support, 100, 100, defaultPrefs)
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("Negotiate() without TRANSFER_DST error = %v, want configuration error", err)
	}
}

func TestNegotiateImageCountAndTransform(t *testing.T) {
	tests := []struct {
		name          string
		min, max      uint32
		wantCount     uint32
		transforms    vk.SurfaceTransformFlags
		wantTransform vk.SurfaceTransformFlagBits
	}{
		{"min plus one", 2, 8, 3, vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit), vk.SurfaceTransformIdentityBit},
		{"capped at max", 3, 3, 3, vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit), vk.SurfaceTransformIdentityBit},
		{"no max", 4, 0, 5, vk.SurfaceTransformFlags(vk.SurfaceTransformRotate90Bit), vk.SurfaceTransformRotate90Bit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			support := testSupport()
			support.Capabilities.MinImageCount = tt.min
			support.Capabilities.MaxImageCount = tt.max
			support.Capabilities.SupportedTransforms = tt.transforms
			got, err := Negotiate(support, 100, 100, defaultPrefs)
			if err != nil {
				t.Fatalf("Negotiate() error = %v", err)
			}
			if got.ImageCount != tt.wantCount {
				t.Errorf("ImageCount = %d, want %d", got.ImageCount, tt.wantCount)
			}
			if got.Transform != tt.wantTransform {
				t.Errorf("Transform = %d, want %d", got.Transform, tt.wantTransform)
			}
		})
	}
}

// fakeSwapchainDevice hands out unique handles and tracks which are alive.
type fakeSwapchainDevice struct {
	support       SwapchainSupport
	imageCount    int
	failCreate    bool
	liveChains    map[vk.Swapchain]bool
	liveViews     map[vk.ImageView]bool
	oldSwapchains []vk.Swapchain
	log           []string
}

func newFakeSwapchainDevice() *fakeSwapchainDevice {
	return &fakeSwapchainDevice{
		support:    testSupport(),
		imageCount: 3,
		liveChains: make(map[vk.Swapchain]bool),
		liveViews:  make(map[vk.ImageView]bool),
	}
}

func fakeHandle() unsafe.Pointer {
	return unsafe.Pointer(new(uint64))
}

func (f *fakeSwapchainDevice) SurfaceSupport() (SwapchainSupport, error) {
	return f.support, nil
}

func (f *fakeSwapchainDevice) CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, error) {
	f.log = append(f.log, "create-swapchain")
	f.oldSwapchains = append(f.oldSwapchains, info.OldSwapchain)
	if info.OldSwapchain != vk.NullSwapchain && !f.liveChains[info.OldSwapchain] {
		return vk.NullSwapchain, errors.New("old swapchain already destroyed")
	}
	if len(f.liveViews) != 0 {
		return vk.NullSwapchain, errors.New("old image views still alive at create")
	}
	if f.failCreate {
		return vk.NullSwapchain, core.NewConfigurationError("create swapchain: VK_ERROR_NATIVE_WINDOW_IN_USE_KHR")
	}
	h := vk.Swapchain(fakeHandle())
	f.liveChains[h] = true
	return h, nil
}

func (f *fakeSwapchainDevice) DestroySwapchain(handle vk.Swapchain) {
	f.log = append(f.log, "destroy-swapchain")
	delete(f.liveChains, handle)
}

func (f *fakeSwapchainDevice) SwapchainImages(handle vk.Swapchain) ([]vk.Image, error) {
	images := make([]vk.Image, f.imageCount)
	for i := range images {
		images[i] = vk.Image(fakeHandle())
	}
	return images, nil
}

func (f *fakeSwapchainDevice) CreateImageView(image vk.Image, format vk.Format) (vk.ImageView, error) {
	v := vk.ImageView(fakeHandle())
	f.liveViews[v] = true
	return v, nil
}

func (f *fakeSwapchainDevice) DestroyImageView(view vk.ImageView) {
	f.log = append(f.log, "destroy-view")
	delete(f.liveViews, view)
}

func TestSwapchainManagerCreate(t *testing.T) {
	dev := newFakeSwapchainDevice()
	m := newSwapchainManager(dev, vk.NullSurface, defaultPrefs)

	sc, err := m.Create(800, 600)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(sc.Images) != 3 || len(sc.Views) != 3 {
		t.Fatalf("images/views = %d/%d, want 3/3", len(sc.Images), len(sc.Views))
	}
	if dev.oldSwapchains[0] != vk.NullSwapchain {
		t.Fatal("first swapchain created with an old swapchain")
	}
	if _, err := m.Create(800, 600); err == nil {
		t.Fatal("second Create() succeeded, want error")
	}
}

func TestSwapchainRecreateIdempotent(t *testing.T) {
	dev := newFakeSwapchainDevice()
	m := newSwapchainManager(dev, vk.NullSurface, defaultPrefs)
	first, err := m.Create(800, 600)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	firstHandle := first.Handle

	a, err := m.Recreate(1024, 768)
	if err != nil {
		t.Fatalf("Recreate() #1 error = %v", err)
	}
	aSettings, aHandle := a.SwapchainSettings, a.Handle
	b, err := m.Recreate(1024, 768)
	if err != nil {
		t.Fatalf("Recreate() #2 error = %v", err)
	}

	if !reflect.DeepEqual(aSettings, b.SwapchainSettings) {
		t.Fatalf("settings differ between identical recreates: %+v vs %+v", aSettings, b.SwapchainSettings)
	}
	if dev.oldSwapchains[1] != firstHandle || dev.oldSwapchains[2] != aHandle {
		t.Fatal("recreate did not pass the retiring handle as OldSwapchain")
	}
	if len(dev.liveChains) != 1 || !dev.liveChains[b.Handle] {
		t.Fatalf("live swapchains = %d, want only the current one", len(dev.liveChains))
	}
	if len(dev.liveViews) != len(b.Views) {
		t.Fatalf("live views = %d, want %d", len(dev.liveViews), len(b.Views))
	}

	m.Destroy()
	if len(dev.liveChains) != 0 || len(dev.liveViews) != 0 {
		t.Fatalf("leaked after Destroy: %d swapchains, %d views", len(dev.liveChains), len(dev.liveViews))
	}
}

func TestSwapchainRecreateOrder(t *testing.T) {
	dev := newFakeSwapchainDevice()
	dev.imageCount = 2
	m := newSwapchainManager(dev, vk.NullSurface, defaultPrefs)
	if _, err := m.Create(800, 600); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	dev.log = nil

	if _, err := m.Recreate(640, 480); err != nil {
		t.Fatalf("Recreate() error = %v", err)
	}
	want := []string{"destroy-view", "destroy-view", "create-swapchain", "destroy-swapchain"}
	if !reflect.DeepEqual(dev.log, want) {
		t.Fatalf("recreate order = %v, want %v", dev.log, want)
	}
}

func TestSwapchainRecreateFailureDoesNotLeak(t *testing.T) {
	dev := newFakeSwapchainDevice()
	m := newSwapchainManager(dev, vk.NullSurface, defaultPrefs)
	if _, err := m.Create(800, 600); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dev.failCreate = true
	_, err := m.Recreate(800, 600)
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("Recreate() error = %v, want configuration error", err)
	}
	if len(dev.liveChains) != 0 || len(dev.liveViews) != 0 {
		t.Fatalf("failed recreate leaked %d swapchains, %d views", len(dev.liveChains), len(dev.liveViews))
	}
	if m.Current() != nil {
		t.Fatal("Current() not nil after failed recreate")
	}

	dev.failCreate = false
	if _, err := m.Recreate(800, 600); err != nil {
		t.Fatalf("Recreate() after failure error = %v", err)
	}
}
