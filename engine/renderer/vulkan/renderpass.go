package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// VulkanRenderpass is the single color + depth pass every frame records.
// Its color format is fixed for the lifetime of the context.
type VulkanRenderpass struct {
	Handle      vk.RenderPass
	ColorFormat vk.Format
	DepthFormat vk.Format
	ClearColor  [4]float32
	Depth       float32
	Stencil     uint32
}

func RenderpassCreate(context *DeviceContext, colorFormat, depthFormat vk.Format, clearColor [4]float32) (*VulkanRenderpass, error) {
	rp := &VulkanRenderpass{
		ColorFormat: colorFormat,
		DepthFormat: depthFormat,
		ClearColor:  clearColor,
		Depth:       1.0,
		Stencil:     0,
	}

	attachments := []vk.AttachmentDescription{
		{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	colorReference := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthReference := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       colorReference,
		PDepthStencilAttachment: &depthReference,
	}

	attachmentStages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  attachmentStages,
		SrcAccessMask: 0,
		DstStageMask:  attachmentStages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var handle vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
		err := resultError(res, "create render pass")
		core.LogError(err.Error())
		return nil, err
	}
	rp.Handle = handle
	return rp, nil
}

func (vr *VulkanRenderpass) Destroy(context *DeviceContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

// Begin starts the pass over the whole of extent, clearing color and depth.
func (vr *VulkanRenderpass) Begin(commandBuffer *VulkanCommandBuffer, framebuffer vk.Framebuffer, extent vk.Extent2D) {
	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor(vr.ClearColor[:])
	clearValues[1].SetDepthStencil(vr.Depth, vr.Stencil)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) End(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
