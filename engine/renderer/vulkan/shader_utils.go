package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// CreateShaderModule wraps SPIR-V words in a shader module.
func (c *DeviceContext) CreateShaderModule(code []uint32) (vk.ShaderModule, error) {
	if len(code) == 0 {
		return vk.NullShaderModule, core.NewConfigurationError("empty SPIR-V module")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(c.Device.LogicalDevice, &createInfo, c.Allocator, &module); res != vk.Success {
		return vk.NullShaderModule, resultError(res, "create shader module")
	}
	return module, nil
}

func (c *DeviceContext) DestroyShaderModule(module vk.ShaderModule) {
	if module != vk.NullShaderModule {
		vk.DestroyShaderModule(c.Device.LogicalDevice, module, c.Allocator)
	}
}

// NewShaderStage creates the module for one stage with entry point "main".
func NewShaderStage(context *DeviceContext, code []uint32, stage vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	module, err := context.CreateShaderModule(code)
	if err != nil {
		return nil, err
	}
	return &VulkanShaderStage{
		Handle: module,
		ShaderStageCreateInfo: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: module,
			PName:  VulkanSafeString("main"),
		},
	}, nil
}

func (s *VulkanShaderStage) Destroy(context *DeviceContext) {
	context.DestroyShaderModule(s.Handle)
	s.Handle = vk.NullShaderModule
}
