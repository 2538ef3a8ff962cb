package vulkan

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
)

// ErrNoPresentMode is returned when the surface offers none of the present
// modes the renderer knows how to drive.
var ErrNoPresentMode = errors.Mark(errors.New("no supported present mode"), core.ErrConfiguration)

const requiredSwapchainUsage = vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit)

// SwapchainSupport is what the surface reports for the selected device.
type SwapchainSupport struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// SwapchainPreferences are the configured choices negotiation starts from.
type SwapchainPreferences struct {
	Format      vk.Format
	PresentMode vk.PresentMode
}

// SwapchainSettings is the outcome of negotiating preferences against the
// surface.
type SwapchainSettings struct {
	Format      vk.Format
	ColorSpace  vk.ColorSpace
	Extent      vk.Extent2D
	PresentMode vk.PresentMode
	Usage       vk.ImageUsageFlags
	Transform   vk.SurfaceTransformFlagBits
	ImageCount  uint32
}

// Negotiate picks the swapchain settings for a window of the given size. It
// has no side effects, so equal inputs always give equal settings.
func Negotiate(support SwapchainSupport, windowWidth, windowHeight uint32, prefs SwapchainPreferences) (SwapchainSettings, error) {
	caps := support.Capabilities
	var settings SwapchainSettings

	if caps.SupportedUsageFlags&requiredSwapchainUsage != requiredSwapchainUsage {
		supported := describeImageUsage(caps.SupportedUsageFlags)
		core.LogError("Surface does not support the required swapchain usage. Supported usages: %s", supported)
		return settings, core.NewConfigurationError("swapchain usage COLOR_ATTACHMENT|TRANSFER_DST unsupported (supported: %s)", supported)
	}
	settings.Usage = requiredSwapchainUsage

	if len(support.Formats) == 0 {
		return settings, core.NewConfigurationError("surface reports no formats")
	}
	settings.Format, settings.ColorSpace = chooseSurfaceFormat(support.Formats, prefs.Format)

	mode, ok := choosePresentMode(support.PresentModes, prefs.PresentMode)
	if !ok {
		return settings, errors.Wrapf(ErrNoPresentMode, "surface offers %v", support.PresentModes)
	}
	settings.PresentMode = mode

	settings.Extent = chooseExtent(caps, windowWidth, windowHeight)

	settings.ImageCount = caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && settings.ImageCount > caps.MaxImageCount {
		settings.ImageCount = caps.MaxImageCount
	}

	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&vk.SurfaceTransformIdentityBit != 0 {
		settings.Transform = vk.SurfaceTransformIdentityBit
	} else {
		settings.Transform = caps.CurrentTransform
	}
	return settings, nil
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat, preferred vk.Format) (vk.Format, vk.ColorSpace) {
	// A single UNDEFINED entry means the surface has no preferred format.
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return preferred, vk.ColorSpaceSrgbNonlinear
	}
	for _, f := range formats {
		if f.Format == preferred {
			return f.Format, f.ColorSpace
		}
	}
	return formats[0].Format, formats[0].ColorSpace
}

func choosePresentMode(available []vk.PresentMode, preferred vk.PresentMode) (vk.PresentMode, bool) {
	order := []vk.PresentMode{preferred, vk.PresentModeImmediate, vk.PresentModeMailbox, vk.PresentModeFifo}
	for _, want := range order {
		for _, m := range available {
			if m == want {
				return m, true
			}
		}
	}
	return 0, false
}

func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  pmath.Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: pmath.Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

var imageUsageNames = []struct {
	bit  vk.ImageUsageFlagBits
	name string
}{
	{vk.ImageUsageTransferSrcBit, "TRANSFER_SRC"},
	{vk.ImageUsageTransferDstBit, "TRANSFER_DST"},
	{vk.ImageUsageSampledBit, "SAMPLED"},
	{vk.ImageUsageStorageBit, "STORAGE"},
	{vk.ImageUsageColorAttachmentBit, "COLOR_ATTACHMENT"},
	{vk.ImageUsageDepthStencilAttachmentBit, "DEPTH_STENCIL_ATTACHMENT"},
	{vk.ImageUsageTransientAttachmentBit, "TRANSIENT_ATTACHMENT"},
	{vk.ImageUsageInputAttachmentBit, "INPUT_ATTACHMENT"},
}

func describeImageUsage(flags vk.ImageUsageFlags) string {
	var names []string
	for _, u := range imageUsageNames {
		if vk.ImageUsageFlagBits(flags)&u.bit != 0 {
			names = append(names, u.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Swapchain is one generation of presentable images. It is never reused:
// a resize retires it and builds a new one.
type Swapchain struct {
	Handle vk.Swapchain
	SwapchainSettings
	Images []vk.Image
	Views  []vk.ImageView
}

// swapchainDevice is the slice of the device context the swapchain manager
// drives.
type swapchainDevice interface {
	SurfaceSupport() (SwapchainSupport, error)
	CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, error)
	DestroySwapchain(handle vk.Swapchain)
	SwapchainImages(handle vk.Swapchain) ([]vk.Image, error)
	CreateImageView(image vk.Image, format vk.Format) (vk.ImageView, error)
	DestroyImageView(view vk.ImageView)
}

// SwapchainManager creates the swapchain and rebuilds it on resize or
// invalidation.
type SwapchainManager struct {
	device  swapchainDevice
	surface vk.Surface
	prefs   SwapchainPreferences
	current *Swapchain
}

func NewSwapchainManager(context *DeviceContext) *SwapchainManager {
	return newSwapchainManager(context, context.Surface, SwapchainPreferences{
		Format:      context.config.PreferredFormat,
		PresentMode: context.config.PreferredPresentMode,
	})
}

func newSwapchainManager(device swapchainDevice, surface vk.Surface, prefs SwapchainPreferences) *SwapchainManager {
	return &SwapchainManager{
		device:  device,
		surface: surface,
		prefs:   prefs,
	}
}

// Current returns the live swapchain or nil.
func (m *SwapchainManager) Current() *Swapchain {
	return m.current
}

// Create builds the first swapchain for a window of the given size.
func (m *SwapchainManager) Create(width, height uint32) (*Swapchain, error) {
	if m.current != nil {
		return nil, errors.New("swapchain already created, use Recreate")
	}
	sc, err := m.build(width, height, vk.NullSwapchain)
	if err != nil {
		return nil, err
	}
	m.current = sc
	core.LogInfo("Swapchain created: %dx%d, %d images, present mode %d.", sc.Extent.Width, sc.Extent.Height, len(sc.Images), sc.PresentMode)
	return sc, nil
}

// Recreate retires the current swapchain and builds a new one. The old views
// are destroyed first, the new swapchain is created from the old handle, and
// the old handle is destroyed afterwards whether or not creation succeeded.
// After a failure Current is nil and the next Recreate starts from scratch;
// the retired handle is never kept around.
func (m *SwapchainManager) Recreate(width, height uint32) (*Swapchain, error) {
	old := m.current
	if old == nil {
		return m.Create(width, height)
	}
	m.current = nil

	m.destroyViews(old)
	sc, err := m.build(width, height, old.Handle)
	m.device.DestroySwapchain(old.Handle)
	old.Handle = vk.NullSwapchain
	if err != nil {
		return nil, errors.Wrap(err, "recreate swapchain")
	}
	m.current = sc
	core.LogInfo("Swapchain recreated: %dx%d.", sc.Extent.Width, sc.Extent.Height)
	return sc, nil
}

func (m *SwapchainManager) Destroy() {
	if m.current == nil {
		return
	}
	m.destroyViews(m.current)
	m.device.DestroySwapchain(m.current.Handle)
	m.current = nil
}

func (m *SwapchainManager) destroyViews(sc *Swapchain) {
	for _, v := range sc.Views {
		m.device.DestroyImageView(v)
	}
	sc.Views = nil
}

func (m *SwapchainManager) build(width, height uint32, old vk.Swapchain) (*Swapchain, error) {
	support, err := m.device.SurfaceSupport()
	if err != nil {
		return nil, err
	}
	settings, err := Negotiate(support, width, height, m.prefs)
	if err != nil {
		return nil, err
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          m.surface,
		MinImageCount:    settings.ImageCount,
		ImageFormat:      settings.Format,
		ImageColorSpace:  settings.ColorSpace,
		ImageExtent:      settings.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       settings.Usage,
		// Graphics and present hand images over with ownership barriers.
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     settings.Transform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      settings.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	handle, err := m.device.CreateSwapchain(&info)
	if err != nil {
		return nil, err
	}
	sc := &Swapchain{Handle: handle, SwapchainSettings: settings}

	images, err := m.device.SwapchainImages(handle)
	if err != nil {
		m.device.DestroySwapchain(handle)
		return nil, err
	}
	sc.Images = images
	sc.Views = make([]vk.ImageView, 0, len(images))
	for _, img := range images {
		view, err := m.device.CreateImageView(img, settings.Format)
		if err != nil {
			m.destroyViews(sc)
			m.device.DestroySwapchain(handle)
			return nil, errors.Wrap(err, "swapchain image view")
		}
		sc.Views = append(sc.Views, view)
	}
	return sc, nil
}

func (c *DeviceContext) SurfaceSupport() (SwapchainSupport, error) {
	return querySwapchainSupport(c.Device.PhysicalDevice, c.Surface)
}

func (c *DeviceContext) CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, error) {
	var handle vk.Swapchain
	if res := vk.CreateSwapchain(c.Device.LogicalDevice, info, c.Allocator, &handle); res != vk.Success {
		return vk.NullSwapchain, core.NewConfigurationError("create swapchain: %s", VulkanResultString(res))
	}
	return handle, nil
}

func (c *DeviceContext) DestroySwapchain(handle vk.Swapchain) {
	if handle != vk.NullSwapchain {
		vk.DestroySwapchain(c.Device.LogicalDevice, handle, c.Allocator)
	}
}

func (c *DeviceContext) SwapchainImages(handle vk.Swapchain) ([]vk.Image, error) {
	var count uint32
	if res := vk.GetSwapchainImages(c.Device.LogicalDevice, handle, &count, nil); res != vk.Success {
		return nil, resultError(res, "get swapchain images")
	}
	images := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(c.Device.LogicalDevice, handle, &count, images); res != vk.Success {
		return nil, resultError(res, "get swapchain images")
	}
	return images, nil
}

func (c *DeviceContext) CreateImageView(image vk.Image, format vk.Format) (vk.ImageView, error) {
	return createImageView(c, image, format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
}

func (c *DeviceContext) DestroyImageView(view vk.ImageView) {
	if view != vk.NullImageView {
		vk.DestroyImageView(c.Device.LogicalDevice, view, c.Allocator)
	}
}
