package vulkan

import (
	"github.com/google/uuid"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

const textureFormat = vk.FormatR8g8b8a8Unorm

// Texture is an RGBA8 image sampled by fragment shaders. Its pixels arrive
// through the StagingBuffer.
type Texture struct {
	ID      uuid.UUID
	Width   uint32
	Height  uint32
	Image   *VulkanImage
	Sampler vk.Sampler

	context *DeviceContext
}

func NewTexture(context *DeviceContext, width, height uint32) (*Texture, error) {
	if width == 0 || height == 0 {
		return nil, core.NewConfigurationError("texture of size %dx%d", width, height)
	}
	image, err := ImageCreate(context, width, height, textureFormat,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, err
	}

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		MaxAnisotropy:           1.0,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareOp:               vk.CompareOpAlways,
	}
	if context.Device.Features.SamplerAnisotropy == vk.True {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = 16.0
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &sampler); res != vk.Success {
		image.Destroy(context)
		return nil, resultError(res, "create sampler")
	}

	t := &Texture{
		ID:      uuid.New(),
		Width:   width,
		Height:  height,
		Image:   image,
		Sampler: sampler,
		context: context,
	}
	core.LogDebug("Created texture %s (%dx%d).", t.ID, width, height)
	return t, nil
}

// Size is the byte length of a tightly packed RGBA8 upload.
func (t *Texture) Size() uint64 {
	return uint64(t.Width) * uint64(t.Height) * 4
}

func (t *Texture) Destroy() {
	if t.context == nil {
		return
	}
	if t.Sampler != nil {
		vk.DestroySampler(t.context.Device.LogicalDevice, t.Sampler, t.context.Allocator)
		t.Sampler = nil
	}
	if t.Image != nil {
		t.Image.Destroy(t.context)
		t.Image = nil
	}
	t.context = nil
}
