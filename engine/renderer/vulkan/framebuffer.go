package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *DeviceContext, renderpass *VulkanRenderpass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	fb := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var handle vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
		return nil, resultError(res, "create framebuffer")
	}
	fb.Handle = handle
	return fb, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *DeviceContext) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	}
	vfb.Handle = vk.NullFramebuffer
	vfb.Attachments = nil
	vfb.Renderpass = nil
}
