package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
}

type VulkanPipelineConfig struct {
	/** @brief The renderpass the pipeline draws in. */
	Renderpass *VulkanRenderpass
	/** @brief The stride of one vertex in bytes. */
	Stride uint32
	/** @brief An array of attributes. */
	Attributes []vk.VertexInputAttributeDescription
	/** @brief An array of descriptor set layouts. */
	DescriptorSetLayouts []vk.DescriptorSetLayout
	/** @brief An array of stages. */
	Stages []vk.PipelineShaderStageCreateInfo
	/** @brief The face cull mode. */
	CullMode vk.CullModeFlagBits
	/** @brief Indicates if this pipeline should use wireframe mode. */
	IsWireframe bool
	DepthTest   bool
	DepthWrite  bool
}

// pipelineStates is every fixed-function block of a graphics pipeline,
// kept together so the pointers handed to Vulkan stay alive.
type pipelineStates struct {
	vertexInput   vk.PipelineVertexInputStateCreateInfo
	inputAssembly vk.PipelineInputAssemblyStateCreateInfo
	viewport      vk.PipelineViewportStateCreateInfo
	rasterization vk.PipelineRasterizationStateCreateInfo
	multisample   vk.PipelineMultisampleStateCreateInfo
	depthStencil  vk.PipelineDepthStencilStateCreateInfo
	colorBlend    vk.PipelineColorBlendStateCreateInfo
	dynamic       vk.PipelineDynamicStateCreateInfo
}

var pipelineDynamicStates = []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}

func newPipelineStates(config *VulkanPipelineConfig) *pipelineStates {
	return &pipelineStates{
		vertexInput: vk.PipelineVertexInputStateCreateInfo{
			SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount: 1,
			PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
				Binding:   0,
				Stride:    config.Stride,
				InputRate: vk.VertexInputRateVertex,
			}},
			VertexAttributeDescriptionCount: uint32(len(config.Attributes)),
			PVertexAttributeDescriptions:    config.Attributes,
		},
		inputAssembly: vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		// Counts only: viewport and scissor are recorded per frame.
		viewport: vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		rasterization: rasterizationState(config),
		multisample: vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
			MinSampleShading:     1.0,
		},
		depthStencil: depthStencilState(config),
		colorBlend: vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: 1,
			PAttachments:    []vk.PipelineColorBlendAttachmentState{alphaBlendAttachment()},
		},
		dynamic: vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(pipelineDynamicStates)),
			PDynamicStates:    pipelineDynamicStates,
		},
	}
}

func rasterizationState(config *VulkanPipelineConfig) vk.PipelineRasterizationStateCreateInfo {
	mode := vk.PolygonModeFill
	if config.IsWireframe {
		mode = vk.PolygonModeLine
	}
	return vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: mode,
		LineWidth:   1.0,
		CullMode:    vk.CullModeFlags(config.CullMode),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}
}

func depthStencilState(config *VulkanPipelineConfig) vk.PipelineDepthStencilStateCreateInfo {
	state := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpLess,
	}
	if config.DepthTest {
		state.DepthTestEnable = vk.True
	}
	if config.DepthWrite {
		state.DepthWriteEnable = vk.True
	}
	return state
}

// alphaBlendAttachment is standard "over" blending on all four channels.
func alphaBlendAttachment() vk.PipelineColorBlendAttachmentState {
	return vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
}

// NewGraphicsPipeline builds a triangle-list pipeline with dynamic viewport
// and scissor, so it survives swapchain resizes.
func NewGraphicsPipeline(context *DeviceContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	if config.Renderpass == nil || len(config.Stages) == 0 {
		return nil, core.NewConfigurationError("graphics pipeline needs a renderpass and at least one stage")
	}
	p := &VulkanPipeline{}
	if err := context.locks.SafeCall(PipelineManagement, func() error {
		return p.create(context, config)
	}); err != nil {
		p.Destroy(context)
		core.LogError("Graphics pipeline: %v", err)
		return nil, err
	}
	core.LogDebug("Graphics pipeline created with %d stages.", len(config.Stages))
	return p, nil
}

func (p *VulkanPipeline) create(context *DeviceContext, config *VulkanPipelineConfig) error {
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(config.DescriptorSetLayouts)),
		PSetLayouts:    config.DescriptorSetLayouts,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout); res != vk.Success {
		return resultError(res, "create pipeline layout")
	}
	p.PipelineLayout = layout

	states := newPipelineStates(config)
	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &states.vertexInput,
		PInputAssemblyState: &states.inputAssembly,
		PViewportState:      &states.viewport,
		PRasterizationState: &states.rasterization,
		PMultisampleState:   &states.multisample,
		PDepthStencilState:  &states.depthStencil,
		PColorBlendState:    &states.colorBlend,
		PDynamicState:       &states.dynamic,
		Layout:              layout,
		RenderPass:          config.Renderpass.Handle,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{info}, context.Allocator, pipelines); res != vk.Success {
		return resultError(res, "create graphics pipeline")
	}
	if pipelines[0] == vk.NullPipeline {
		return core.NewSubmissionError("create graphics pipeline returned a null handle")
	}
	p.Handle = pipelines[0]
	return nil
}

func (p *VulkanPipeline) Destroy(context *DeviceContext) {
	_ = context.locks.SafeCall(PipelineManagement, func() error {
		if p.Handle != vk.NullPipeline {
			vk.DestroyPipeline(context.Device.LogicalDevice, p.Handle, context.Allocator)
			p.Handle = vk.NullPipeline
		}
		if p.PipelineLayout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(context.Device.LogicalDevice, p.PipelineLayout, context.Allocator)
			p.PipelineLayout = vk.NullPipelineLayout
		}
		return nil
	})
}

func (p *VulkanPipeline) Bind(cmd vk.CommandBuffer) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, p.Handle)
}

// BindDescriptorSet binds set at set index 0 of the pipeline layout.
func (p *VulkanPipeline) BindDescriptorSet(cmd vk.CommandBuffer, set vk.DescriptorSet) {
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, p.PipelineLayout, 0, 1, []vk.DescriptorSet{set}, 0, nil)
}
