package vulkan

import (
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

const engineName = "Prism Engine"

func availableInstanceLayers() (map[string]bool, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return nil, resultError(res, "enumerate instance layers")
	}
	layers := make([]vk.LayerProperties, count)
	if count > 0 {
		if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
			return nil, resultError(res, "enumerate instance layers")
		}
	}
	names := make(map[string]bool, count)
	for i := range layers {
		layers[i].Deref()
		name := vk.ToString(layers[i].LayerName[:])
		core.LogDebug("Available Layer: `%s`", name)
		names[name] = true
	}
	return names, nil
}

// instanceExtensions returns the extensions required by the window plus the
// debug and portability ones this renderer enables.
func instanceExtensions(windowExtensions []string, validation bool, goos string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(names ...string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	add("VK_KHR_surface")
	add(windowExtensions...)
	if goos == "darwin" {
		add("VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
	}
	if validation {
		add(vk.ExtDebugReportExtensionName)
	}
	return out
}

func createInstance(context *DeviceContext, windowExtensions []string) error {
	cfg := context.config
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(cfg.ApplicationName),
		PEngineName:        VulkanSafeString(engineName),
	}

	extensions := instanceExtensions(windowExtensions, cfg.EnableValidation, runtime.GOOS)
	core.LogInfo("Required extensions: %v", extensions)

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	if runtime.GOOS == "darwin" {
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if cfg.EnableValidation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		available, err := availableInstanceLayers()
		if err != nil {
			return err
		}
		if !available[validationLayerName] {
			return core.NewConfigurationError("required validation layer is missing: %s", validationLayerName)
		}
		core.LogInfo("All required validation layers are present.")
		layers = append(layers, validationLayerName)
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, context.Allocator, &instance); res != vk.Success {
		return core.NewConfigurationError("create instance: %s", VulkanResultString(res))
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, context.Allocator)
		return err
	}
	context.Instance = instance
	core.LogInfo("Vulkan Instance created.")

	if cfg.EnableValidation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(instance, &debugCreateInfo, context.Allocator, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		context.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
