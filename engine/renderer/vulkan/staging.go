package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// transferDevice is what the staging buffer needs from the device context.
type transferDevice interface {
	MapMemory(alloc *Allocation) ([]byte, error)
	UnmapMemory(alloc *Allocation)
	OneShot(record func(rec CommandRecorder) error) error
}

var (
	shaderReadScope = AccessScope{
		Access: vk.AccessFlags(vk.AccessShaderReadBit),
		Stage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	}
	topOfPipeScope = AccessScope{
		Access: 0,
		Stage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
	}
)

// StagingBuffer is a single host-visible buffer every upload goes through.
// Data is copied into it with CopyMemory and then moved to a device-local
// buffer or texture by a one-shot transfer that blocks until the queue is
// idle.
type StagingBuffer struct {
	mu     sync.Mutex
	device transferDevice
	buffer *Buffer
}

func NewStagingBuffer(context *DeviceContext, size uint64) (*StagingBuffer, error) {
	buffer, err := newBuffer(context, size, BufferUsageStaging,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, errors.Wrap(err, "staging buffer")
	}
	return newStagingBuffer(context, buffer), nil
}

func newStagingBuffer(device transferDevice, buffer *Buffer) *StagingBuffer {
	return &StagingBuffer{
		device: device,
		buffer: buffer,
	}
}

// Size is the capacity in bytes.
func (s *StagingBuffer) Size() uint64 {
	return s.buffer.Size
}

// CopyMemory writes src to the start of the staging buffer.
func (s *StagingBuffer) CopyMemory(src []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyMemory(src)
}

// TransferBuffer copies the first size bytes of the staging buffer into dst
// and makes them visible to dst's consumer.
func (s *StagingBuffer) TransferBuffer(dst *Buffer, size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferBuffer(dst, size)
}

// TransferTexture copies the staging buffer into dst and leaves it in the
// shader-read layout.
func (s *StagingBuffer) TransferTexture(dst *Texture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferTexture(dst)
}

// Upload copies src into dst with the staging lock held for both steps.
func (s *StagingBuffer) Upload(src []byte, dst *Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.copyMemory(src); err != nil {
		return err
	}
	return s.transferBuffer(dst, uint64(len(src)))
}

// UploadTexture copies tightly packed RGBA8 pixels into dst.
func (s *StagingBuffer) UploadTexture(pixels []byte, dst *Texture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(len(pixels)) != dst.Size() {
		return core.NewConfigurationError("texture %s expects %d bytes, got %d", dst.ID, dst.Size(), len(pixels))
	}
	if err := s.copyMemory(pixels); err != nil {
		return err
	}
	return s.transferTexture(dst)
}

func (s *StagingBuffer) copyMemory(src []byte) error {
	if uint64(len(src)) > s.buffer.Size {
		return core.NewResourceExhaustedError("copy of %d bytes exceeds staging buffer of %d bytes", len(src), s.buffer.Size)
	}
	mapped, err := s.device.MapMemory(s.buffer.allocation)
	if err != nil {
		return errors.Wrap(err, "map staging buffer")
	}
	copy(mapped, src)
	s.device.UnmapMemory(s.buffer.allocation)
	return nil
}

func (s *StagingBuffer) transferBuffer(dst *Buffer, size uint64) error {
	if size > s.buffer.Size {
		return core.NewResourceExhaustedError("transfer of %d bytes exceeds staging buffer of %d bytes", size, s.buffer.Size)
	}
	if size > dst.Size {
		return core.NewResourceExhaustedError("transfer of %d bytes exceeds %s buffer %s of %d bytes", size, dst.Usage, dst.ID, dst.Size)
	}
	return s.device.OneShot(func(rec CommandRecorder) error {
		// A frame still in flight may be reading dst; its reads finish
		// before the copy writes.
		rec.BufferBarrier(dst, size, dst.Usage.consumer(), transferWriteScope)
		rec.CopyBuffer(s.buffer, dst, size)
		rec.BufferBarrier(dst, size, transferWriteScope, dst.Usage.consumer())
		return nil
	})
}

func (s *StagingBuffer) transferTexture(dst *Texture) error {
	if dst.Size() > s.buffer.Size {
		return core.NewResourceExhaustedError("texture of %d bytes exceeds staging buffer of %d bytes", dst.Size(), s.buffer.Size)
	}
	return s.device.OneShot(func(rec CommandRecorder) error {
		rec.ImageBarrier(dst, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, topOfPipeScope, transferWriteScope)
		rec.CopyBufferToImage(s.buffer, dst)
		rec.ImageBarrier(dst, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, transferWriteScope, shaderReadScope)
		return nil
	})
}

func (s *StagingBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer != nil {
		s.buffer.Destroy()
		s.buffer = nil
	}
}
