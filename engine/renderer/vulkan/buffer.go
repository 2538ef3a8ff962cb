package vulkan

import (
	"github.com/google/uuid"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// BufferUsage names the consumer a device-local buffer is read by. It decides
// the usage flags at creation and the barrier that follows an upload.
type BufferUsage int

const (
	BufferUsageVertex BufferUsage = iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStaging
)

func (u BufferUsage) String() string {
	switch u {
	case BufferUsageVertex:
		return "vertex"
	case BufferUsageIndex:
		return "index"
	case BufferUsageUniform:
		return "uniform"
	case BufferUsageStaging:
		return "staging"
	}
	return "unknown"
}

func (u BufferUsage) flags() vk.BufferUsageFlags {
	switch u {
	case BufferUsageVertex:
		return vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferDstBit)
	case BufferUsageIndex:
		return vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit)
	case BufferUsageUniform:
		return vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit | vk.BufferUsageTransferDstBit)
	}
	return vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
}

// AccessScope pairs an access mask with the pipeline stage it happens in.
type AccessScope struct {
	Access vk.AccessFlags
	Stage  vk.PipelineStageFlags
}

var transferWriteScope = AccessScope{
	Access: vk.AccessFlags(vk.AccessTransferWriteBit),
	Stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
}

// consumer returns the first access that reads a buffer of this usage after
// a transfer.
func (u BufferUsage) consumer() AccessScope {
	switch u {
	case BufferUsageVertex:
		return AccessScope{
			Access: vk.AccessFlags(vk.AccessVertexAttributeReadBit),
			Stage:  vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
		}
	case BufferUsageIndex:
		return AccessScope{
			Access: vk.AccessFlags(vk.AccessIndexReadBit),
			Stage:  vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
		}
	case BufferUsageUniform:
		return AccessScope{
			Access: vk.AccessFlags(vk.AccessUniformReadBit),
			Stage:  vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit),
		}
	}
	return AccessScope{
		Access: vk.AccessFlags(vk.AccessTransferReadBit),
		Stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	}
}

// Buffer is a GPU buffer with its own allocation. Vertex, index and uniform
// buffers live in device-local memory and are filled via the StagingBuffer.
type Buffer struct {
	ID     uuid.UUID
	Handle vk.Buffer
	Size   uint64
	Usage  BufferUsage

	allocation *Allocation
	context    *DeviceContext
}

func NewVertexBuffer(context *DeviceContext, size uint64) (*Buffer, error) {
	return newDeviceBuffer(context, size, BufferUsageVertex)
}

func NewIndexBuffer(context *DeviceContext, size uint64) (*Buffer, error) {
	return newDeviceBuffer(context, size, BufferUsageIndex)
}

func NewUniformBuffer(context *DeviceContext, size uint64) (*Buffer, error) {
	return newDeviceBuffer(context, size, BufferUsageUniform)
}

func newDeviceBuffer(context *DeviceContext, size uint64, usage BufferUsage) (*Buffer, error) {
	return newBuffer(context, size, usage, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
}

func newBuffer(context *DeviceContext, size uint64, usage BufferUsage, flags vk.MemoryPropertyFlags) (*Buffer, error) {
	if size == 0 {
		return nil, core.NewConfigurationError("%s buffer of zero size", usage)
	}
	handle, alloc, err := context.Memory.CreateBuffer(size, usage.flags(), flags)
	if err != nil {
		return nil, err
	}
	b := &Buffer{
		ID:         uuid.New(),
		Handle:     handle,
		Size:       size,
		Usage:      usage,
		allocation: alloc,
		context:    context,
	}
	core.LogDebug("Created %s buffer %s (%d bytes).", usage, b.ID, size)
	return b, nil
}

func (b *Buffer) Destroy() {
	if b.context == nil {
		return
	}
	b.context.Memory.DestroyBuffer(b.Handle, b.allocation)
	b.Handle = vk.NullBuffer
	b.allocation = nil
	b.context = nil
}
