package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	// Resettable pool for the per-frame command buffers.
	GraphicsCommandPool vk.CommandPool
	// Pool for one-shot transfer command buffers.
	TransientCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

// SharedQueue reports whether graphics and present use the same family, in
// which case no ownership transfer barriers are recorded.
func (d *VulkanDevice) SharedQueue() bool {
	return d.GraphicsQueueIndex == d.PresentQueueIndex
}

type queueFamilyIndices struct {
	Graphics uint32
	Present  uint32
}

// selectQueueFamilies picks the graphics and present families. A family that
// supports both is preferred; otherwise the first graphics family and the
// first present family are used.
func selectQueueFamilies(families []vk.QueueFamilyProperties, supportsPresent func(index uint32) (bool, error)) (queueFamilyIndices, bool, error) {
	graphics, present := -1, -1
	for i, family := range families {
		isGraphics := family.QueueCount > 0 && vk.QueueFlagBits(family.QueueFlags)&vk.QueueGraphicsBit != 0
		canPresent, err := supportsPresent(uint32(i))
		if err != nil {
			return queueFamilyIndices{}, false, err
		}
		if isGraphics && canPresent {
			return queueFamilyIndices{Graphics: uint32(i), Present: uint32(i)}, true, nil
		}
		if isGraphics && graphics < 0 {
			graphics = i
		}
		if canPresent && present < 0 {
			present = i
		}
	}
	if graphics < 0 || present < 0 {
		return queueFamilyIndices{}, false, nil
	}
	return queueFamilyIndices{Graphics: uint32(graphics), Present: uint32(present)}, true, nil
}

// pickDepthFormat returns preferred when supported, otherwise the first
// supported fallback.
func pickDepthFormat(preferred vk.Format, supported func(vk.Format) bool) (vk.Format, bool) {
	candidates := []vk.Format{
		preferred,
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
		vk.FormatD16Unorm,
	}
	for _, f := range candidates {
		if isDepthFormat(f) && supported(f) {
			return f, true
		}
	}
	return vk.FormatUndefined, false
}

func deviceTypeScore(t vk.PhysicalDeviceType) int {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 3
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 2
	case vk.PhysicalDeviceTypeVirtualGpu:
		return 1
	}
	return 0
}

func deviceTypeString(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "Integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "Discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "Virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	}
	return "Unknown"
}

func enumerateDeviceExtensions(device vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, resultError(res, "enumerate device extensions")
	}
	available := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
			return nil, resultError(res, "enumerate device extensions")
		}
	}
	names := make(map[string]bool, count)
	for i := range available {
		available[i].Deref()
		names[vk.ToString(available[i].ExtensionName[:])] = true
	}
	return names, nil
}

type physicalDeviceCandidate struct {
	device     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	memory     vk.PhysicalDeviceMemoryProperties
	families   queueFamilyIndices
	score      int
}

func inspectPhysicalDevice(device vk.PhysicalDevice, surface vk.Surface) (*physicalDeviceCandidate, error) {
	c := &physicalDeviceCandidate{device: device}
	vk.GetPhysicalDeviceProperties(device, &c.properties)
	c.properties.Deref()
	c.properties.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(device, &c.features)
	c.features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(device, &c.memory)
	c.memory.Deref()
	name := vk.ToString(c.properties.DeviceName[:])

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)
	for i := range families {
		families[i].Deref()
	}

	indices, ok, err := selectQueueFamilies(families, func(index uint32) (bool, error) {
		var supported vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, index, surface, &supported); res != vk.Success {
			return false, resultError(res, "query surface support")
		}
		return supported == vk.True, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		core.LogInfo("Device '%s' lacks a graphics or present queue, skipping.", name)
		return nil, nil
	}
	c.families = indices

	extensions, err := enumerateDeviceExtensions(device)
	if err != nil {
		return nil, err
	}
	if !extensions[vk.KhrSwapchainExtensionName] {
		core.LogInfo("Required extension not found: '%s', skipping device '%s'.", vk.KhrSwapchainExtensionName, name)
		return nil, nil
	}

	support, err := querySwapchainSupport(device, surface)
	if err != nil {
		return nil, err
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", name)
		return nil, nil
	}

	c.score = deviceTypeScore(c.properties.DeviceType)
	return c, nil
}

// SelectPhysicalDevice picks the highest ranked device that can render and
// present to the context surface.
func SelectPhysicalDevice(context *DeviceContext) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &count, nil); res != vk.Success {
		return resultError(res, "enumerate physical devices")
	}
	if count == 0 {
		return core.NewConfigurationError("no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &count, devices); res != vk.Success {
		return resultError(res, "enumerate physical devices")
	}

	var best *physicalDeviceCandidate
	for _, device := range devices {
		c, err := inspectPhysicalDevice(device, context.Surface)
		if err != nil {
			return err
		}
		if c != nil && (best == nil || c.score > best.score) {
			best = c
		}
	}
	if best == nil {
		return core.NewConfigurationError("no physical devices were found which meet the requirements")
	}

	context.Device = &VulkanDevice{
		PhysicalDevice:     best.device,
		GraphicsQueueIndex: best.families.Graphics,
		PresentQueueIndex:  best.families.Present,
		Properties:         best.properties,
		Features:           best.features,
		Memory:             best.memory,
	}

	props := best.properties
	core.LogInfo("Selected device: '%s'.", vk.ToString(props.DeviceName[:]))
	core.LogInfo("GPU type is %s.", deviceTypeString(props.DeviceType))
	core.LogInfo("GPU Driver version: %d.%d.%d",
		vk.Version(props.DriverVersion).Major(),
		vk.Version(props.DriverVersion).Minor(),
		vk.Version(props.DriverVersion).Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d",
		vk.Version(props.ApiVersion).Major(),
		vk.Version(props.ApiVersion).Minor(),
		vk.Version(props.ApiVersion).Patch())
	for i := uint32(0); i < best.memory.MemoryHeapCount; i++ {
		heap := best.memory.MemoryHeaps[i]
		heap.Deref()
		gib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
	core.LogDebug("Graphics Family Index: %d", best.families.Graphics)
	core.LogDebug("Present Family Index:  %d", best.families.Present)
	return nil
}

// DeviceCreate creates the logical device, its queues and both command pools.
func DeviceCreate(context *DeviceContext) error {
	d := context.Device
	core.LogInfo("Creating logical device...")

	families := []uint32{d.GraphicsQueueIndex}
	if !d.SharedQueue() {
		families = append(families, d.PresentQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	features := vk.PhysicalDeviceFeatures{}
	if d.Features.SamplerAnisotropy == vk.True {
		features.SamplerAnisotropy = vk.True
	}

	available, err := enumerateDeviceExtensions(d.PhysicalDevice)
	if err != nil {
		return err
	}
	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if available[portabilitySubsetExtension] {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
		extensionNames = append(extensionNames, portabilitySubsetExtension)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	var device vk.Device
	if res := vk.CreateDevice(d.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		return core.NewConfigurationError("create logical device: %s", VulkanResultString(res))
	}
	d.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(device, d.GraphicsQueueIndex, 0, &graphicsQueue)
	vk.GetDeviceQueue(device, d.PresentQueueIndex, 0, &presentQueue)
	d.GraphicsQueue = graphicsQueue
	d.PresentQueue = presentQueue
	core.LogInfo("Queues obtained.")

	graphicsPool, err := createCommandPool(context, d.GraphicsQueueIndex, vk.CommandPoolCreateResetCommandBufferBit)
	if err != nil {
		return errors.Wrap(err, "graphics command pool")
	}
	d.GraphicsCommandPool = graphicsPool
	transientPool, err := createCommandPool(context, d.GraphicsQueueIndex, vk.CommandPoolCreateTransientBit)
	if err != nil {
		return errors.Wrap(err, "transient command pool")
	}
	d.TransientCommandPool = transientPool
	core.LogInfo("Command pools created.")

	depth, ok := pickDepthFormat(context.config.DepthFormat, func(f vk.Format) bool {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, f, &props)
		props.Deref()
		flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
		return props.OptimalTilingFeatures&flags == flags
	})
	if !ok {
		return core.NewConfigurationError("no supported depth format found")
	}
	if depth != context.config.DepthFormat {
		core.LogWarn("Depth format %d unsupported, falling back to %d.", context.config.DepthFormat, depth)
	}
	d.DepthFormat = depth
	return nil
}

func createCommandPool(context *DeviceContext, family uint32, flags vk.CommandPoolCreateFlagBits) (vk.CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(flags),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(context.Device.LogicalDevice, &info, context.Allocator, &pool); res != vk.Success {
		return vk.NullCommandPool, resultError(res, "create command pool")
	}
	return pool, nil
}

// DestroyCommandPools releases the graphics and transient pools. Safe to call
// more than once.
func DestroyCommandPools(context *DeviceContext) {
	if context == nil || context.Device == nil || context.Device.LogicalDevice == nil {
		return
	}
	d := context.Device
	if d.TransientCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.LogicalDevice, d.TransientCommandPool, context.Allocator)
		d.TransientCommandPool = vk.NullCommandPool
	}
	if d.GraphicsCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, context.Allocator)
		d.GraphicsCommandPool = vk.NullCommandPool
	}
}

// DeviceDestroy releases the command pools, if still alive, and the logical
// device. Physical devices are not destroyed.
func DeviceDestroy(context *DeviceContext) {
	d := context.Device
	if d == nil {
		return
	}
	d.GraphicsQueue = nil
	d.PresentQueue = nil

	if d.LogicalDevice == nil {
		return
	}
	DestroyCommandPools(context)

	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.LogicalDevice, context.Allocator)
	d.LogicalDevice = nil
}

// querySwapchainSupport reads the surface capabilities, formats and present
// modes for device.
func querySwapchainSupport(device vk.PhysicalDevice, surface vk.Surface) (SwapchainSupport, error) {
	var support SwapchainSupport
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(device, surface, &support.Capabilities); res != vk.Success {
		return support, resultError(res, "query surface capabilities")
	}
	support.Capabilities.Deref()
	support.Capabilities.CurrentExtent.Deref()
	support.Capabilities.MinImageExtent.Deref()
	support.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil); res != vk.Success {
		return support, resultError(res, "query surface formats")
	}
	if formatCount > 0 {
		support.Formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, support.Formats); res != vk.Success {
			return support, resultError(res, "query surface formats")
		}
		for i := range support.Formats {
			support.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, nil); res != vk.Success {
		return support, resultError(res, "query surface present modes")
	}
	if modeCount > 0 {
		support.PresentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, support.PresentModes); res != vk.Success {
			return support, resultError(res, "query surface present modes")
		}
	}
	return support, nil
}
