package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// ErrDescriptorSetsExhausted is returned by Acquire when every set is in use.
var ErrDescriptorSetsExhausted = errors.Mark(errors.New("descriptor sets exhausted"), core.ErrResourceExhausted)

// DescriptorSetPool pre-allocates a fixed number of descriptor sets of one
// layout and hands out indices into them. Acquire takes the first free set.
type DescriptorSetPool struct {
	mu        sync.Mutex
	context   *DeviceContext
	handle    vk.DescriptorPool
	sets      []vk.DescriptorSet
	available []bool
	inUse     int
}

// NewDescriptorSetPool creates a pool sized for capacity sets of layout and
// allocates all of them up front.
func NewDescriptorSetPool(context *DeviceContext, layout vk.DescriptorSetLayout, capacity int, sizes []vk.DescriptorPoolSize) (*DescriptorSetPool, error) {
	if capacity < 1 {
		return nil, core.NewConfigurationError("descriptor pool capacity must be at least 1, got %d", capacity)
	}
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            s.Type,
			DescriptorCount: s.DescriptorCount * uint32(capacity),
		}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(capacity),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var handle vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &handle); res != vk.Success {
		return nil, resultError(res, "create descriptor pool")
	}

	layouts := make([]vk.DescriptorSetLayout, capacity)
	for i := range layouts {
		layouts[i] = layout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     handle,
		DescriptorSetCount: uint32(capacity),
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, capacity)
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &sets[0]); res != vk.Success {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, handle, context.Allocator)
		if res == vk.ErrorOutOfPoolMemory || res == vk.ErrorFragmentedPool {
			return nil, core.NewResourceExhaustedError("allocate %d descriptor sets: %s", capacity, VulkanResultString(res))
		}
		return nil, resultError(res, "allocate descriptor sets")
	}

	p := newDescriptorSetPool(capacity)
	p.context = context
	p.handle = handle
	p.sets = sets
	core.LogDebug("Descriptor set pool created with %d sets.", capacity)
	return p, nil
}

func newDescriptorSetPool(capacity int) *DescriptorSetPool {
	available := make([]bool, capacity)
	for i := range available {
		available[i] = true
	}
	return &DescriptorSetPool{
		sets:      make([]vk.DescriptorSet, capacity),
		available: available,
	}
}

// Acquire returns the index of the first available set and marks it used.
func (p *DescriptorSetPool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, free := range p.available {
		if free {
			p.available[i] = false
			p.inUse++
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrDescriptorSetsExhausted, "all %d sets in use", len(p.available))
}

// Release marks the set at index available again.
func (p *DescriptorSetPool) Release(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.available) {
		return errors.Newf("descriptor set index %d out of range (capacity=%d)", index, len(p.available))
	}
	if p.available[index] {
		return errors.Newf("descriptor set %d released while not in use", index)
	}
	p.available[index] = true
	p.inUse--
	return nil
}

// Set returns the descriptor set handle at index.
func (p *DescriptorSetPool) Set(index int) vk.DescriptorSet {
	return p.sets[index]
}

func (p *DescriptorSetPool) Capacity() int {
	return len(p.available)
}

func (p *DescriptorSetPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Destroy frees the pool and with it every set.
func (p *DescriptorSetPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse > 0 {
		core.LogWarn("Descriptor set pool destroyed with %d sets in use.", p.inUse)
	}
	if p.context == nil || p.handle == nil {
		return
	}
	vk.DestroyDescriptorPool(p.context.Device.LogicalDevice, p.handle, p.context.Allocator)
	p.handle = nil
	p.sets = nil
}

// CreateDescriptorSetLayout creates a layout from bindings.
func CreateDescriptorSetLayout(context *DeviceContext, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &info, context.Allocator, &layout); res != vk.Success {
		return nil, resultError(res, "create descriptor set layout")
	}
	return layout, nil
}

func DestroyDescriptorSetLayout(context *DeviceContext, layout vk.DescriptorSetLayout) {
	if layout != nil {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, layout, context.Allocator)
	}
}

// WriteTextureAndUniform points the set at index to texture on binding 0 and
// uniform on binding 1.
func (p *DescriptorSetPool) WriteTextureAndUniform(index int, texture *Texture, uniform *Buffer) {
	set := p.Set(index)
	imageInfo := []vk.DescriptorImageInfo{{
		Sampler:     texture.Sampler,
		ImageView:   texture.Image.View,
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}}
	bufferInfo := []vk.DescriptorBufferInfo{{
		Buffer: uniform.Handle,
		Offset: 0,
		Range:  vk.DeviceSize(uniform.Size),
	}}
	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      0,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo:      imageInfo,
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      1,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo:     bufferInfo,
		},
	}
	vk.UpdateDescriptorSets(p.context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
}
