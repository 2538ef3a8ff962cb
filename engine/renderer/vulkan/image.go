package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// VulkanImage is a 2D device-local image with its memory and one view.
type VulkanImage struct {
	Handle     vk.Image
	View       vk.ImageView
	Width      uint32
	Height     uint32
	Format     vk.Format
	allocation *Allocation
}

// ImageCreate creates an optimally tiled 2D image and, when aspect is non
// zero, a view over it.
func ImageCreate(context *DeviceContext, width, height uint32, format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) (*VulkanImage, error) {
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	handle, alloc, err := context.Memory.CreateImage(&info, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}
	img := &VulkanImage{
		Handle:     handle,
		Width:      width,
		Height:     height,
		Format:     format,
		allocation: alloc,
	}
	if aspect != 0 {
		view, err := createImageView(context, handle, format, aspect)
		if err != nil {
			img.Destroy(context)
			return nil, errors.Wrap(err, "image view")
		}
		img.View = view
	}
	return img, nil
}

func createImageView(context *DeviceContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &info, context.Allocator, &view); res != vk.Success {
		return vk.NullImageView, resultError(res, "create image view")
	}
	return view, nil
}

func (img *VulkanImage) Destroy(context *DeviceContext) {
	if img.View != vk.NullImageView {
		vk.DestroyImageView(context.Device.LogicalDevice, img.View, context.Allocator)
		img.View = vk.NullImageView
	}
	if img.Handle != vk.NullImage || img.allocation != nil {
		context.Memory.DestroyImage(img.Handle, img.allocation)
		img.Handle = vk.NullImage
		img.allocation = nil
	}
}

// DepthImageCreate creates a depth attachment of the device depth format.
func DepthImageCreate(context *DeviceContext, extent vk.Extent2D) (*VulkanImage, error) {
	return ImageCreate(context,
		extent.Width, extent.Height,
		context.Device.DepthFormat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
}
