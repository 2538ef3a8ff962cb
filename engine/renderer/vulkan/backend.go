package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// VulkanRenderer ties the device context, swapchain, render pass, frame slots
// and staging buffer together and drives them through a Presenter.
type VulkanRenderer struct {
	FrameNumber uint64

	context    *DeviceContext
	swapchains *SwapchainManager
	renderpass *VulkanRenderpass
	frames     *FramePool
	staging    *StagingBuffer
	presenter  *Presenter
	listenerID core.ListenerID
}

// New brings up the full presentation stack for window. Whatever was created
// before a failure is torn down again.
func New(window Window, cfg Config) (*VulkanRenderer, error) {
	context, err := NewDeviceContext(window, cfg)
	if err != nil {
		return nil, err
	}
	vr := &VulkanRenderer{context: context}
	if err := vr.initialize(); err != nil {
		vr.Shutdown()
		return nil, err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return vr, nil
}

func (vr *VulkanRenderer) initialize() error {
	cfg := vr.context.Config()
	width, height := vr.context.Window().FramebufferSize()
	if width == 0 || height == 0 {
		return core.NewConfigurationError("window framebuffer has zero area (%dx%d)", width, height)
	}

	vr.swapchains = NewSwapchainManager(vr.context)
	sc, err := vr.swapchains.Create(width, height)
	if err != nil {
		return err
	}

	rp, err := RenderpassCreate(vr.context, sc.Format, vr.context.Device.DepthFormat, cfg.ClearColor)
	if err != nil {
		return err
	}
	vr.renderpass = rp

	frames, err := NewFramePool(vr.context, cfg.FramesInFlight, sc.Extent)
	if err != nil {
		return err
	}
	vr.frames = frames

	staging, err := NewStagingBuffer(vr.context, cfg.StagingBufferSize)
	if err != nil {
		return err
	}
	vr.staging = staging

	vr.presenter = newPresenter(vr, cfg.FramesInFlight, cfg.FenceTimeout)
	vr.listenerID = vr.context.Window().AddResizeListener(vr.presenter)
	return nil
}

// Shutdown waits for the device to go idle and destroys everything in
// reverse creation order.
func (vr *VulkanRenderer) Shutdown() error {
	if vr.context == nil {
		return nil
	}
	if vr.presenter != nil {
		vr.context.Window().RemoveResizeListener(vr.listenerID)
		vr.presenter = nil
	}
	err := vr.context.WaitIdle()
	if err != nil {
		core.LogError("Device did not go idle before shutdown: %v", err)
	}

	for _, step := range vr.shutdownSteps() {
		core.LogDebug("Destroying %s...", step.name)
		step.destroy()
	}
	vr.context = nil
	core.LogInfo("Vulkan renderer shut down.")
	return err
}

type shutdownStep struct {
	name    string
	destroy func()
}

// shutdownSteps lists the teardown in order: frame slots, command pools,
// swapchain, render pass, then the context itself.
func (vr *VulkanRenderer) shutdownSteps() []shutdownStep {
	return []shutdownStep{
		{"frame slots", func() {
			if vr.frames != nil {
				vr.frames.Destroy()
				vr.frames = nil
			}
		}},
		{"staging buffer", func() {
			if vr.staging != nil {
				vr.staging.Destroy()
				vr.staging = nil
			}
		}},
		{"command pools", func() {
			DestroyCommandPools(vr.context)
		}},
		{"swapchain", func() {
			if vr.swapchains != nil {
				vr.swapchains.Destroy()
				vr.swapchains = nil
			}
		}},
		{"render pass", func() {
			if vr.renderpass != nil {
				vr.renderpass.Destroy(vr.context)
				vr.renderpass = nil
			}
		}},
		{"device context", func() {
			vr.context.Destroy()
		}},
	}
}

func (vr *VulkanRenderer) Context() *DeviceContext {
	return vr.context
}

func (vr *VulkanRenderer) Staging() *StagingBuffer {
	return vr.staging
}

func (vr *VulkanRenderer) Renderpass() *VulkanRenderpass {
	return vr.renderpass
}

func (vr *VulkanRenderer) Presenter() *Presenter {
	return vr.presenter
}

// Extent is the size of the current swapchain images.
func (vr *VulkanRenderer) Extent() vk.Extent2D {
	if sc := vr.swapchains.Current(); sc != nil {
		return sc.Extent
	}
	return vk.Extent2D{}
}

// DrawFrame presents one frame, calling draw inside the render pass.
func (vr *VulkanRenderer) DrawFrame(draw DrawFunc) (FrameResult, error) {
	res, err := vr.presenter.Present(draw)
	if res == FramePresented {
		vr.FrameNumber++
	}
	return res, err
}

func (vr *VulkanRenderer) WaitForFrame(frame int, timeout uint64) error {
	return vr.frames.Slot(frame).InFlight.Wait(vr.context, timeout)
}

func (vr *VulkanRenderer) ResetFrame(frame int) error {
	return vr.frames.Slot(frame).InFlight.Reset(vr.context)
}

func (vr *VulkanRenderer) AcquireImage(frame int) (uint32, vk.Result) {
	var imageIndex uint32
	res := vk.AcquireNextImage(
		vr.context.Device.LogicalDevice,
		vr.swapchains.Current().Handle,
		math.MaxUint64,
		vr.frames.Slot(frame).ImageAvailable,
		vk.NullFence,
		&imageIndex)
	return imageIndex, res
}

func (vr *VulkanRenderer) RecordFrame(frame int, imageIndex uint32, draw DrawFunc) error {
	sc := vr.swapchains.Current()
	slot := vr.frames.Slot(frame)
	device := vr.context.Device

	fb, err := vr.frames.BindFramebuffer(frame, vr.renderpass, sc.Views[imageIndex], sc.Extent)
	if err != nil {
		return errors.Wrapf(err, "framebuffer for image %d", imageIndex)
	}

	cb := slot.CommandBuffer
	if err := cb.Reset(); err != nil {
		return err
	}
	if err := cb.Begin(false, false, false); err != nil {
		return err
	}

	colorAspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	handoff := AccessScope{
		Access: vk.AccessFlags(vk.AccessMemoryReadBit),
		Stage:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
	}
	if !device.SharedQueue() {
		recordImageBarrier(cb.Handle, sc.Images[imageIndex], colorAspect,
			vk.ImageLayoutUndefined, vk.ImageLayoutPresentSrc,
			device.PresentQueueIndex, device.GraphicsQueueIndex, handoff, handoff)
	}

	vr.renderpass.Begin(cb, fb.Handle, sc.Extent)

	viewport := vk.Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    float32(sc.Extent.Width),
		Height:   float32(sc.Extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: sc.Extent,
	}
	vk.CmdSetViewport(cb.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cb.Handle, 0, 1, []vk.Rect2D{scissor})

	if draw != nil {
		draw(cb.Handle)
	}

	vr.renderpass.End(cb)

	if !device.SharedQueue() {
		recordImageBarrier(cb.Handle, sc.Images[imageIndex], colorAspect,
			vk.ImageLayoutPresentSrc, vk.ImageLayoutPresentSrc,
			device.GraphicsQueueIndex, device.PresentQueueIndex,
			handoff, AccessScope{
				Access: vk.AccessFlags(vk.AccessMemoryReadBit),
				Stage:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			})
	}
	return cb.End()
}

func (vr *VulkanRenderer) SubmitFrame(frame int) error {
	slot := vr.frames.Slot(frame)
	device := vr.context.Device

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{slot.ImageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{slot.CommandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{slot.RenderFinished},
	}
	return vr.context.locks.SafeQueueCall(device.GraphicsQueueIndex, func() error {
		if res := vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, slot.InFlight.Handle); res != vk.Success {
			err := core.NewSubmissionError("queue submit: %s", VulkanResultString(res))
			core.LogError(err.Error())
			return err
		}
		slot.CommandBuffer.UpdateSubmitted()
		return nil
	})
}

func (vr *VulkanRenderer) PresentImage(frame int, imageIndex uint32) vk.Result {
	slot := vr.frames.Slot(frame)
	device := vr.context.Device

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{slot.RenderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vr.swapchains.Current().Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	var res vk.Result
	vr.context.locks.SafeQueueCall(device.PresentQueueIndex, func() error {
		res = vk.QueuePresent(device.PresentQueue, &presentInfo)
		return nil
	})
	return res
}

// Rebuild recreates the swapchain and the per-slot resources that depend on
// its extent. The render pass survives, so the color format may not change.
func (vr *VulkanRenderer) Rebuild() error {
	width, height := vr.context.Window().FramebufferSize()
	if width == 0 || height == 0 {
		core.LogDebug("Framebuffer is %dx%d, postponing swapchain rebuild.", width, height)
		return errSurfaceZeroSized
	}
	if err := vr.context.WaitIdle(); err != nil {
		return err
	}

	sc, err := vr.swapchains.Recreate(width, height)
	if err != nil {
		return err
	}
	if sc.Format != vr.renderpass.ColorFormat {
		return core.NewConfigurationError("swapchain color format changed from %d to %d on recreate", vr.renderpass.ColorFormat, sc.Format)
	}
	if err := vr.frames.Rebuild(sc.Extent); err != nil {
		return err
	}
	core.LogInfo("Vulkan renderer resized to %dx%d.", sc.Extent.Width, sc.Extent.Height)
	return nil
}
