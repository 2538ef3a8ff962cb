package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

func NewVulkanCommandBuffer(context *DeviceContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := resultError(res, "allocate command buffer")
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanCommandBuffer{
		Handle: handles[0],
		State:  COMMAND_BUFFER_STATE_READY,
	}, nil
}

func (v *VulkanCommandBuffer) Free(context *DeviceContext, pool vk.CommandPool) {
	if v.Handle != nil {
		vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	}
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		return core.NewSubmissionError("begin command buffer: %s", VulkanResultString(res))
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return core.NewSubmissionError("end command buffer: %s", VulkanResultString(res))
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return core.NewSubmissionError("reset command buffer: %s", VulkanResultString(res))
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

// AllocateAndBeginSingleUse allocates a primary command buffer from pool and
// begins recording it for one submission.
func AllocateAndBeginSingleUse(context *DeviceContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free(context, pool)
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits to queue and waits for it to go idle.
// The caller frees the buffer.
func (v *VulkanCommandBuffer) EndSingleUse(context *DeviceContext, family uint32, queue vk.Queue) error {
	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	return context.locks.SafeQueueCall(family, func() error {
		if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
			return core.NewSubmissionError("one-shot queue submit: %s", VulkanResultString(res))
		}
		v.UpdateSubmitted()
		if res := vk.QueueWaitIdle(queue); res != vk.Success {
			return core.NewSubmissionError("one-shot queue wait idle: %s", VulkanResultString(res))
		}
		return nil
	})
}
