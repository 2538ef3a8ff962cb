package vulkan

import (
	"fmt"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
var resultNames = map[vk.Result]string{
	vk.Success:                          "VK_SUCCESS",
	vk.NotReady:                         "VK_NOT_READY",
	vk.Timeout:                          "VK_TIMEOUT",
	vk.EventSet:                         "VK_EVENT_SET",
	vk.EventReset:                       "VK_EVENT_RESET",
	vk.Incomplete:                       "VK_INCOMPLETE",
	vk.Suboptimal:                       "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:             "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:           "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed:        "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:                  "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:             "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:             "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:         "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:           "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:          "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:              "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:          "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:              "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorSurfaceLost:                 "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:           "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:                   "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorIncompatibleDisplay:         "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	vk.ErrorOutOfPoolMemory:             "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorInvalidExternalHandle:       "VK_ERROR_INVALID_EXTERNAL_HANDLE",
	vk.ErrorFragmentation:               "VK_ERROR_FRAGMENTATION",
	vk.ErrorFullScreenExclusiveModeLost: "VK_ERROR_FULL_SCREEN_EXCLUSIVE_MODE_LOST_EXT",
	vk.ErrorUnknown:                     "VK_ERROR_UNKNOWN",
}

// VulkanResultString returns the VkResult enum name for result.
func VulkanResultString(result vk.Result) string {
	if name, ok := resultNames[result]; ok {
		return name
	}
	return fmt.Sprintf("VkResult(%d)", int32(result))
}

// VulkanResultIsSuccess reports whether result is one of the non-error codes.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= vk.Success
}

// resultError turns a failed call into an error naming the operation and the
// result. It returns nil for vk.Success.
func resultError(result vk.Result, op string) error {
	if result == vk.Success {
		return nil
	}
	return errors.Newf("%s: %s", op, VulkanResultString(result))
}

// VulkanSafeString returns s with the NUL terminator the C side expects.
func VulkanSafeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}
