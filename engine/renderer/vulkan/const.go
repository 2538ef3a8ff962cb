package vulkan

import (
	"strings"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

const (
	// DefaultFramesInFlight is the number of frame slots cycled by the presenter.
	DefaultFramesInFlight = 2
	// DefaultStagingBufferSize is the size in bytes of the shared upload buffer.
	DefaultStagingBufferSize uint64 = 1000 * 1000 * 100
	// DefaultDescriptorPoolCapacity is the number of descriptor sets a material can hand out.
	DefaultDescriptorPoolCapacity = 4096
	// DefaultFenceTimeout bounds the per-frame fence wait, in nanoseconds.
	DefaultFenceTimeout uint64 = 5 * 1000 * 1000 * 1000

	validationLayerName = "VK_LAYER_KHRONOS_validation"
)

// Config holds the engine-wide renderer constants.
type Config struct {
	ApplicationName        string
	FramesInFlight         int
	StagingBufferSize      uint64
	DescriptorPoolCapacity int
	PreferredFormat        vk.Format
	PreferredPresentMode   vk.PresentMode
	DepthFormat            vk.Format
	FenceTimeout           uint64
	ClearColor             [4]float32
	EnableValidation       bool
}

func DefaultConfig() Config {
	return Config{
		ApplicationName:        "prism",
		FramesInFlight:         DefaultFramesInFlight,
		StagingBufferSize:      DefaultStagingBufferSize,
		DescriptorPoolCapacity: DefaultDescriptorPoolCapacity,
		PreferredFormat:        vk.FormatR8g8b8a8Unorm,
		PreferredPresentMode:   vk.PresentModeImmediate,
		DepthFormat:            vk.FormatD16Unorm,
		FenceTimeout:           DefaultFenceTimeout,
		ClearColor:             [4]float32{1.0, 0.8, 0.4, 0.0},
	}
}

// Validate rejects configurations the renderer cannot run with.
func (c Config) Validate() error {
	if c.FramesInFlight < 1 {
		return core.NewConfigurationError("frames in flight must be at least 1, got %d", c.FramesInFlight)
	}
	if c.StagingBufferSize == 0 {
		return core.NewConfigurationError("staging buffer size must be positive")
	}
	if c.DescriptorPoolCapacity < 1 {
		return core.NewConfigurationError("descriptor pool capacity must be at least 1, got %d", c.DescriptorPoolCapacity)
	}
	if c.FenceTimeout == 0 {
		return core.NewConfigurationError("fence timeout must be positive")
	}
	return nil
}

var formatNames = map[string]vk.Format{
	"R8G8B8A8_UNORM":    vk.FormatR8g8b8a8Unorm,
	"R8G8B8A8_SRGB":     vk.FormatR8g8b8a8Srgb,
	"B8G8R8A8_UNORM":    vk.FormatB8g8r8a8Unorm,
	"B8G8R8A8_SRGB":     vk.FormatB8g8r8a8Srgb,
	"D16_UNORM":         vk.FormatD16Unorm,
	"D32_SFLOAT":        vk.FormatD32Sfloat,
	"D24_UNORM_S8_UINT": vk.FormatD24UnormS8Uint,
}

var presentModeNames = map[string]vk.PresentMode{
	"IMMEDIATE":    vk.PresentModeImmediate,
	"MAILBOX":      vk.PresentModeMailbox,
	"FIFO":         vk.PresentModeFifo,
	"FIFO_RELAXED": vk.PresentModeFifoRelaxed,
}

// ParseFormat maps a config name such as "R8G8B8A8_UNORM" to a vk.Format.
func ParseFormat(name string) (vk.Format, error) {
	key := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "VK_FORMAT_")
	if f, ok := formatNames[key]; ok {
		return f, nil
	}
	return vk.FormatUndefined, core.NewConfigurationError("unsupported format %q", name)
}

// ParsePresentMode maps a config name such as "MAILBOX" to a vk.PresentMode.
func ParsePresentMode(name string) (vk.PresentMode, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.TrimSuffix(strings.TrimPrefix(key, "VK_PRESENT_MODE_"), "_KHR")
	if m, ok := presentModeNames[key]; ok {
		return m, nil
	}
	return vk.PresentModeFifo, core.NewConfigurationError("unsupported present mode %q", name)
}

func isDepthFormat(f vk.Format) bool {
	switch f {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint, vk.FormatD16UnormS8Uint:
		return true
	}
	return false
}
