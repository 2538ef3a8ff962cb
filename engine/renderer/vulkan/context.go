package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// Window is what the renderer needs from the platform window.
type Window interface {
	FramebufferSize() (width, height uint32)
	AddResizeListener(l core.ResizeListener) core.ListenerID
	RemoveResizeListener(id core.ListenerID)
	RequiredInstanceExtensions() []string
	InstanceProcAddr() unsafe.Pointer
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

// DeviceContext owns the instance, surface, devices, queues, command pools
// and the memory allocator. It is created once and destroyed last.
type DeviceContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device *VulkanDevice
	Memory *MemoryAllocator

	locks  *VulkanLockPool
	window Window
	config Config
}

// NewDeviceContext brings up Vulkan against window. On failure everything
// created so far is released.
func NewDeviceContext(window Window, cfg Config) (*DeviceContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	procAddr := window.InstanceProcAddr()
	if procAddr == nil {
		return nil, core.NewConfigurationError("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize vk")
	}

	context := &DeviceContext{
		locks:  NewVulkanLockPool(),
		window: window,
		config: cfg,
	}
	if err := context.init(); err != nil {
		context.Destroy()
		return nil, err
	}
	core.LogInfo("Vulkan device context initialized successfully.")
	return context, nil
}

func (c *DeviceContext) init() error {
	if err := createInstance(c, c.window.RequiredInstanceExtensions()); err != nil {
		return err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := c.window.CreateSurface(c.Instance)
	if err != nil {
		return errors.Wrap(err, "vulkan surface creation failed")
	}
	c.Surface = surface
	core.LogDebug("Vulkan surface created.")

	if err := SelectPhysicalDevice(c); err != nil {
		return err
	}
	if err := DeviceCreate(c); err != nil {
		return err
	}
	c.Memory = NewMemoryAllocator(c.Device.LogicalDevice, c.Device.Memory, c.Allocator)
	return nil
}

func (c *DeviceContext) Config() Config {
	return c.config
}

func (c *DeviceContext) Window() Window {
	return c.window
}

// WaitIdle blocks until the device has finished all submitted work.
func (c *DeviceContext) WaitIdle() error {
	if c.Device == nil || c.Device.LogicalDevice == nil {
		return nil
	}
	if res := vk.DeviceWaitIdle(c.Device.LogicalDevice); res != vk.Success {
		return core.NewSubmissionError("device wait idle: %s", VulkanResultString(res))
	}
	return nil
}

// Destroy releases the allocator, the device with any command pools still
// alive, the surface, the debug hook and the instance, in that order. Callers
// destroy their own resources first.
func (c *DeviceContext) Destroy() {
	if c.Memory != nil {
		c.Memory.Destroy()
		c.Memory = nil
	}
	if c.Device != nil {
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(c)
		c.Device = nil
	}
	if c.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(c.Instance, c.Surface, c.Allocator)
		c.Surface = vk.NullSurface
	}
	if c.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(c.Instance, c.debugCallback, c.Allocator)
		c.debugCallback = vk.NullDebugReportCallback
	}
	if c.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(c.Instance, c.Allocator)
		c.Instance = nil
	}
}

// OneShot records a command buffer from the transient pool with record,
// submits it on the graphics queue and blocks until the queue is idle.
func (c *DeviceContext) OneShot(record func(rec CommandRecorder) error) error {
	return c.locks.SafeCall(CommandPoolManagement, func() error {
		pool := c.Device.TransientCommandPool
		cb, err := AllocateAndBeginSingleUse(c, pool)
		if err != nil {
			return err
		}
		defer cb.Free(c, pool)

		if err := record(&vkRecorder{cmd: cb.Handle}); err != nil {
			return err
		}
		return cb.EndSingleUse(c, c.Device.GraphicsQueueIndex, c.Device.GraphicsQueue)
	})
}

func (c *DeviceContext) MapMemory(alloc *Allocation) ([]byte, error) {
	return c.Memory.Map(alloc)
}

func (c *DeviceContext) UnmapMemory(alloc *Allocation) {
	c.Memory.Unmap(alloc)
}

func (c *DeviceContext) newSemaphore() (vk.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(c.Device.LogicalDevice, &info, c.Allocator, &semaphore); res != vk.Success {
		return vk.NullSemaphore, resultError(res, "create semaphore")
	}
	return semaphore, nil
}

func (c *DeviceContext) destroySemaphore(s vk.Semaphore) {
	if s != vk.NullSemaphore {
		vk.DestroySemaphore(c.Device.LogicalDevice, s, c.Allocator)
	}
}
