package vulkan

import (
	vk "github.com/goki/vulkan"
)

// CommandRecorder is the set of transfer commands the staging path records
// into a one-shot command buffer.
type CommandRecorder interface {
	CopyBuffer(src, dst *Buffer, size uint64)
	CopyBufferToImage(src *Buffer, dst *Texture)
	BufferBarrier(buffer *Buffer, size uint64, src, dst AccessScope)
	ImageBarrier(texture *Texture, oldLayout, newLayout vk.ImageLayout, src, dst AccessScope)
}

type vkRecorder struct {
	cmd vk.CommandBuffer
}

func (r *vkRecorder) CopyBuffer(src, dst *Buffer, size uint64) {
	region := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(r.cmd, src.Handle, dst.Handle, 1, []vk.BufferCopy{region})
}

func (r *vkRecorder) CopyBufferToImage(src *Buffer, dst *Texture) {
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{Width: dst.Width, Height: dst.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(r.cmd, src.Handle, dst.Image.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (r *vkRecorder) BufferBarrier(buffer *Buffer, size uint64, src, dst AccessScope) {
	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       src.Access,
		DstAccessMask:       dst.Access,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              buffer.Handle,
		Offset:              0,
		Size:                vk.DeviceSize(size),
	}
	vk.CmdPipelineBarrier(r.cmd, src.Stage, dst.Stage, 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
}

func (r *vkRecorder) ImageBarrier(texture *Texture, oldLayout, newLayout vk.ImageLayout, src, dst AccessScope) {
	recordImageBarrier(r.cmd, texture.Image.Handle, vk.ImageAspectFlags(vk.ImageAspectColorBit),
		oldLayout, newLayout, vk.QueueFamilyIgnored, vk.QueueFamilyIgnored, src, dst)
}

func recordImageBarrier(cmd vk.CommandBuffer, image vk.Image, aspect vk.ImageAspectFlags, oldLayout, newLayout vk.ImageLayout, srcFamily, dstFamily uint32, src, dst AccessScope) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       src.Access,
		DstAccessMask:       dst.Access,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: srcFamily,
		DstQueueFamilyIndex: dstFamily,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdPipelineBarrier(cmd, src.Stage, dst.Stage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
