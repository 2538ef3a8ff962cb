package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *DeviceContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		return nil, resultError(res, "create fence")
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) Destroy(context *DeviceContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait blocks until the fence signals or timeoutNs elapses. A timeout is a
// submission error: there is no way to tell which stage hung.
func (vf *VulkanFence) Wait(context *DeviceContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return core.NewSubmissionError("fence wait timed out after %dns", timeoutNs)
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(result))
		return core.NewSubmissionError("fence wait: %s", VulkanResultString(result))
	}
}

func (vf *VulkanFence) Reset(context *DeviceContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return core.NewSubmissionError("reset fence: %s", VulkanResultString(res))
	}
	vf.IsSignaled = false
	return nil
}
