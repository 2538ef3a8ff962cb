package systems

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/resources"
)

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

type MaterialConfig struct {
	Name string
	// Shader asset names, loaded as shaders/<name>.spv.
	VertexShader   string
	FragmentShader string
	// Number of descriptor sets, one per mesh using the material.
	Capacity  int
	CullMode  vk.CullModeFlagBits
	Wireframe bool
}

func DefaultMaterialConfig(capacity int) MaterialConfig {
	return MaterialConfig{
		Name:           DefaultMaterialName,
		VertexShader:   "builtin.vert",
		FragmentShader: "builtin.frag",
		Capacity:       capacity,
		CullMode:       vk.CullModeBackBit,
	}
}

// StandardMaterial owns a textured pipeline: binding 0 is a combined image
// sampler read by the fragment stage, binding 1 a uniform buffer read by the
// vertex stage. Meshes take one descriptor set each from its pool.
type StandardMaterial struct {
	config      MaterialConfig
	context     *vulkan.DeviceContext
	renderpass  *vulkan.VulkanRenderpass
	assets      assetSource
	layout      vk.DescriptorSetLayout
	descriptors *vulkan.DescriptorSetPool
	pipeline    *vulkan.VulkanPipeline

	// set from the asset watcher goroutine, consumed by ReloadIfChanged
	stale atomic.Bool
}

var materialBindings = []vk.DescriptorSetLayoutBinding{
	{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	},
	{
		Binding:         1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	},
}

// materialPoolSizes are per set; the pool multiplies them by capacity.
var materialPoolSizes = []vk.DescriptorPoolSize{
	{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 1},
	{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
}

func NewStandardMaterial(r *vulkan.VulkanRenderer, am assetSource, config MaterialConfig) (*StandardMaterial, error) {
	m := &StandardMaterial{
		config:     config,
		context:    r.Context(),
		renderpass: r.Renderpass(),
		assets:     am,
	}

	layout, err := vulkan.CreateDescriptorSetLayout(m.context, materialBindings)
	if err != nil {
		return nil, err
	}
	m.layout = layout

	m.descriptors, err = vulkan.NewDescriptorSetPool(m.context, layout, config.Capacity, materialPoolSizes)
	if err != nil {
		m.Destroy()
		return nil, err
	}

	if m.pipeline, err = m.buildPipeline(); err != nil {
		m.Destroy()
		return nil, err
	}
	core.LogInfo("Material '%s' created (%d descriptor sets).", config.Name, config.Capacity)
	return m, nil
}

func (m *StandardMaterial) Name() string {
	return m.config.Name
}

func (m *StandardMaterial) loadShader(name string) ([]uint32, error) {
	res, err := m.assets.LoadAsset(name, resources.ResourceTypeShader, nil)
	if err != nil {
		return nil, err
	}
	defer m.assets.UnloadAsset(res)
	code, ok := res.Data.([]uint32)
	if !ok {
		return nil, errors.Newf("asset %s is not a shader", name)
	}
	return code, nil
}

func (m *StandardMaterial) buildPipeline() (*vulkan.VulkanPipeline, error) {
	stageNames := []struct {
		name  string
		stage vk.ShaderStageFlagBits
	}{
		{m.config.VertexShader, vk.ShaderStageVertexBit},
		{m.config.FragmentShader, vk.ShaderStageFragmentBit},
	}

	stages := make([]*vulkan.VulkanShaderStage, 0, len(stageNames))
	// modules are only needed until the pipeline exists
	defer func() {
		for _, s := range stages {
			s.Destroy(m.context)
		}
	}()

	infos := make([]vk.PipelineShaderStageCreateInfo, 0, len(stageNames))
	for _, sn := range stageNames {
		code, err := m.loadShader(sn.name)
		if err != nil {
			return nil, errors.Wrapf(err, "material %s", m.config.Name)
		}
		stage, err := vulkan.NewShaderStage(m.context, code, sn.stage)
		if err != nil {
			return nil, errors.Wrapf(err, "material %s: shader %s", m.config.Name, sn.name)
		}
		stages = append(stages, stage)
		infos = append(infos, stage.ShaderStageCreateInfo)
	}

	return vulkan.NewGraphicsPipeline(m.context, &vulkan.VulkanPipelineConfig{
		Renderpass:           m.renderpass,
		Stride:               vulkan.VertexStride,
		Attributes:           vulkan.VertexAttributes(),
		DescriptorSetLayouts: []vk.DescriptorSetLayout{m.layout},
		Stages:               infos,
		CullMode:             m.config.CullMode,
		IsWireframe:          m.config.Wireframe,
		DepthTest:            true,
		DepthWrite:           true,
	})
}

// OnAssetChanged marks the material stale when one of its shaders changes on
// disk. Safe to call from the asset watcher goroutine.
func (m *StandardMaterial) OnAssetChanged(info assets.AssetInfo) {
	if info.Type != resources.ResourceTypeShader {
		return
	}
	if info.Path == assets.AssetPath(m.config.VertexShader, resources.ResourceTypeShader) ||
		info.Path == assets.AssetPath(m.config.FragmentShader, resources.ResourceTypeShader) {
		m.stale.Store(true)
	}
}

// ReloadIfChanged rebuilds the pipeline after a shader change. Call between
// frames. A shader that fails to build keeps the previous pipeline.
func (m *StandardMaterial) ReloadIfChanged() (bool, error) {
	if !m.stale.Swap(false) {
		return false, nil
	}
	pipeline, err := m.buildPipeline()
	if err != nil {
		core.LogWarn("material '%s' reload failed, keeping previous pipeline: %s", m.config.Name, err)
		return false, err
	}
	// the old pipeline may still be used by frames in flight
	if err := m.context.WaitIdle(); err != nil {
		pipeline.Destroy(m.context)
		return false, err
	}
	m.pipeline.Destroy(m.context)
	m.pipeline = pipeline
	core.LogInfo("Material '%s' reloaded.", m.config.Name)
	return true, nil
}

func (m *StandardMaterial) Bind(cmd vk.CommandBuffer) {
	m.pipeline.Bind(cmd)
}

// AcquireSet reserves a descriptor set for one mesh.
func (m *StandardMaterial) AcquireSet() (int, error) {
	return m.descriptors.Acquire()
}

func (m *StandardMaterial) ReleaseSet(index int) error {
	return m.descriptors.Release(index)
}

// WriteSet points the set at index to texture and uniform.
func (m *StandardMaterial) WriteSet(index int, texture *vulkan.Texture, uniform *vulkan.Buffer) {
	m.descriptors.WriteTextureAndUniform(index, texture, uniform)
}

// BindSet binds the set at index for the following draws.
func (m *StandardMaterial) BindSet(cmd vk.CommandBuffer, index int) {
	m.pipeline.BindDescriptorSet(cmd, m.descriptors.Set(index))
}

func (m *StandardMaterial) Destroy() {
	if m.pipeline != nil {
		m.pipeline.Destroy(m.context)
		m.pipeline = nil
	}
	if m.descriptors != nil {
		m.descriptors.Destroy()
		m.descriptors = nil
	}
	vulkan.DestroyDescriptorSetLayout(m.context, m.layout)
	m.layout = nil
}
