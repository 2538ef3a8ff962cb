package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// FrameSlot holds everything one in-flight frame records and waits on. A
// slot is not touched again until InFlight signals.
type FrameSlot struct {
	CommandBuffer  *VulkanCommandBuffer
	ImageAvailable vk.Semaphore
	RenderFinished vk.Semaphore
	InFlight       *VulkanFence
	Framebuffer    *VulkanFramebuffer
	Depth          *VulkanImage
}

// FramePool owns the fixed set of frame slots.
type FramePool struct {
	context *DeviceContext
	slots   []*FrameSlot
}

// NewFramePool creates count slots. Fences start signaled so the first wait
// on each slot returns immediately.
func NewFramePool(context *DeviceContext, count int, extent vk.Extent2D) (*FramePool, error) {
	if count < 1 {
		return nil, core.NewConfigurationError("frames in flight must be at least 1, got %d", count)
	}
	p := &FramePool{
		context: context,
		slots:   make([]*FrameSlot, 0, count),
	}
	for i := 0; i < count; i++ {
		slot, err := p.newSlot(extent)
		if err != nil {
			p.Destroy()
			return nil, errors.Wrapf(err, "frame slot %d", i)
		}
		p.slots = append(p.slots, slot)
	}
	core.LogDebug("Created %d frame slots.", count)
	return p, nil
}

func (p *FramePool) newSlot(extent vk.Extent2D) (*FrameSlot, error) {
	slot := &FrameSlot{}
	var err error
	if slot.ImageAvailable, err = p.context.newSemaphore(); err != nil {
		return nil, err
	}
	if slot.RenderFinished, err = p.context.newSemaphore(); err != nil {
		p.destroySlot(slot)
		return nil, err
	}
	if slot.InFlight, err = NewFence(p.context, true); err != nil {
		p.destroySlot(slot)
		return nil, err
	}
	if err := p.createResizables(slot, extent); err != nil {
		p.destroySlot(slot)
		return nil, err
	}
	return slot, nil
}

func (p *FramePool) createResizables(slot *FrameSlot, extent vk.Extent2D) error {
	cb, err := NewVulkanCommandBuffer(p.context, p.context.Device.GraphicsCommandPool, true)
	if err != nil {
		return err
	}
	slot.CommandBuffer = cb

	depth, err := DepthImageCreate(p.context, extent)
	if err != nil {
		return errors.Wrap(err, "depth image")
	}
	slot.Depth = depth
	return nil
}

func (p *FramePool) destroyResizables(slot *FrameSlot) {
	if slot.Framebuffer != nil {
		slot.Framebuffer.Destroy(p.context)
		slot.Framebuffer = nil
	}
	if slot.Depth != nil {
		slot.Depth.Destroy(p.context)
		slot.Depth = nil
	}
	if slot.CommandBuffer != nil {
		slot.CommandBuffer.Free(p.context, p.context.Device.GraphicsCommandPool)
		slot.CommandBuffer = nil
	}
}

func (p *FramePool) destroySlot(slot *FrameSlot) {
	p.destroyResizables(slot)
	if slot.InFlight != nil {
		slot.InFlight.Destroy(p.context)
		slot.InFlight = nil
	}
	p.context.destroySemaphore(slot.RenderFinished)
	p.context.destroySemaphore(slot.ImageAvailable)
	slot.RenderFinished = vk.NullSemaphore
	slot.ImageAvailable = vk.NullSemaphore
}

func (p *FramePool) Len() int {
	return len(p.slots)
}

func (p *FramePool) Slot(frame int) *FrameSlot {
	return p.slots[frame]
}

// Rebuild recreates each slot's command buffer and depth image for a new
// extent and drops the framebuffers. The device must be idle.
func (p *FramePool) Rebuild(extent vk.Extent2D) error {
	for i, slot := range p.slots {
		p.destroyResizables(slot)
		if err := p.createResizables(slot, extent); err != nil {
			return errors.Wrapf(err, "rebuild frame slot %d", i)
		}
	}
	return nil
}

// BindFramebuffer points the slot's framebuffer at the acquired swapchain
// view and the slot's depth view.
func (p *FramePool) BindFramebuffer(frame int, renderpass *VulkanRenderpass, colorView vk.ImageView, extent vk.Extent2D) (*VulkanFramebuffer, error) {
	slot := p.slots[frame]
	if slot.Framebuffer != nil {
		slot.Framebuffer.Destroy(p.context)
		slot.Framebuffer = nil
	}
	fb, err := FramebufferCreate(p.context, renderpass, extent.Width, extent.Height, []vk.ImageView{colorView, slot.Depth.View})
	if err != nil {
		return nil, err
	}
	slot.Framebuffer = fb
	return fb, nil
}

func (p *FramePool) Destroy() {
	for _, slot := range p.slots {
		p.destroySlot(slot)
	}
	p.slots = nil
}
