package vulkan

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// Allocation is one dedicated block of device memory bound to a buffer or
// an image.
type Allocation struct {
	Memory      vk.DeviceMemory
	Size        uint64
	HostVisible bool
}

// MemoryAllocator hands out dedicated allocations and keeps a count of live
// ones so leaks are reported at shutdown.
type MemoryAllocator struct {
	mu         sync.Mutex
	device     vk.Device
	callbacks  *vk.AllocationCallbacks
	properties vk.PhysicalDeviceMemoryProperties
	live       int
}

func NewMemoryAllocator(device vk.Device, properties vk.PhysicalDeviceMemoryProperties, callbacks *vk.AllocationCallbacks) *MemoryAllocator {
	for i := uint32(0); i < properties.MemoryTypeCount; i++ {
		properties.MemoryTypes[i].Deref()
	}
	return &MemoryAllocator{
		device:     device,
		callbacks:  callbacks,
		properties: properties,
	}
}

// findMemoryType returns the first memory type allowed by typeFilter that has
// all the requested property flags.
func findMemoryType(properties vk.PhysicalDeviceMemoryProperties, typeFilter uint32, flags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < properties.MemoryTypeCount; i++ {
		if typeFilter&(1<<i) != 0 && properties.MemoryTypes[i].PropertyFlags&flags == flags {
			return i, nil
		}
	}
	return 0, core.NewConfigurationError("no memory type matches filter %#x with flags %#x", typeFilter, uint32(flags))
}

func (a *MemoryAllocator) allocate(reqs vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (*Allocation, error) {
	index, err := findMemoryType(a.properties, reqs.MemoryTypeBits, flags)
	if err != nil {
		return nil, err
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(a.device, &info, a.callbacks, &memory); res != vk.Success {
		if res == vk.ErrorOutOfDeviceMemory || res == vk.ErrorOutOfHostMemory {
			return nil, core.NewResourceExhaustedError("allocate %d bytes: %s", uint64(reqs.Size), VulkanResultString(res))
		}
		return nil, resultError(res, "allocate memory")
	}
	a.mu.Lock()
	a.live++
	a.mu.Unlock()
	return &Allocation{
		Memory:      memory,
		Size:        uint64(reqs.Size),
		HostVisible: flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0,
	}, nil
}

// CreateBuffer creates a buffer of size bytes and binds a fresh allocation
// with the given memory properties to it.
func (a *MemoryAllocator) CreateBuffer(size uint64, usage vk.BufferUsageFlags, flags vk.MemoryPropertyFlags) (vk.Buffer, *Allocation, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if res := vk.CreateBuffer(a.device, &info, a.callbacks, &buffer); res != vk.Success {
		return vk.NullBuffer, nil, resultError(res, "create buffer")
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(a.device, buffer, &reqs)
	reqs.Deref()

	alloc, err := a.allocate(reqs, flags)
	if err != nil {
		vk.DestroyBuffer(a.device, buffer, a.callbacks)
		return vk.NullBuffer, nil, errors.Wrap(err, "buffer memory")
	}
	if res := vk.BindBufferMemory(a.device, buffer, alloc.Memory, 0); res != vk.Success {
		a.free(alloc)
		vk.DestroyBuffer(a.device, buffer, a.callbacks)
		return vk.NullBuffer, nil, resultError(res, "bind buffer memory")
	}
	return buffer, alloc, nil
}

// CreateImage creates an image from info and binds device memory to it.
func (a *MemoryAllocator) CreateImage(info *vk.ImageCreateInfo, flags vk.MemoryPropertyFlags) (vk.Image, *Allocation, error) {
	var image vk.Image
	if res := vk.CreateImage(a.device, info, a.callbacks, &image); res != vk.Success {
		return vk.NullImage, nil, resultError(res, "create image")
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(a.device, image, &reqs)
	reqs.Deref()

	alloc, err := a.allocate(reqs, flags)
	if err != nil {
		vk.DestroyImage(a.device, image, a.callbacks)
		return vk.NullImage, nil, errors.Wrap(err, "image memory")
	}
	if res := vk.BindImageMemory(a.device, image, alloc.Memory, 0); res != vk.Success {
		a.free(alloc)
		vk.DestroyImage(a.device, image, a.callbacks)
		return vk.NullImage, nil, resultError(res, "bind image memory")
	}
	return image, alloc, nil
}

func (a *MemoryAllocator) DestroyBuffer(buffer vk.Buffer, alloc *Allocation) {
	if buffer != vk.NullBuffer {
		vk.DestroyBuffer(a.device, buffer, a.callbacks)
	}
	a.free(alloc)
}

func (a *MemoryAllocator) DestroyImage(image vk.Image, alloc *Allocation) {
	if image != vk.NullImage {
		vk.DestroyImage(a.device, image, a.callbacks)
	}
	a.free(alloc)
}

func (a *MemoryAllocator) free(alloc *Allocation) {
	if alloc == nil || alloc.Memory == vk.NullDeviceMemory {
		return
	}
	vk.FreeMemory(a.device, alloc.Memory, a.callbacks)
	alloc.Memory = vk.NullDeviceMemory
	a.mu.Lock()
	a.live--
	a.mu.Unlock()
}

// Map exposes the whole allocation as a byte slice valid until Unmap.
func (a *MemoryAllocator) Map(alloc *Allocation) ([]byte, error) {
	if !alloc.HostVisible {
		return nil, errors.New("map of device-local memory")
	}
	var data unsafe.Pointer
	if res := vk.MapMemory(a.device, alloc.Memory, 0, vk.DeviceSize(alloc.Size), 0, &data); res != vk.Success {
		return nil, resultError(res, "map memory")
	}
	return unsafe.Slice((*byte)(data), alloc.Size), nil
}

func (a *MemoryAllocator) Unmap(alloc *Allocation) {
	vk.UnmapMemory(a.device, alloc.Memory)
}

// Live returns the number of allocations not yet freed.
func (a *MemoryAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

func (a *MemoryAllocator) Destroy() {
	if n := a.Live(); n > 0 {
		core.LogWarn("Memory allocator destroyed with %d live allocations.", n)
	}
}
