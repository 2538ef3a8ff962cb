package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

func TestPipelineStates(t *testing.T) {
	tests := []struct {
		name      string
		config    VulkanPipelineConfig
		wantMode  vk.PolygonMode
		wantTest  vk.Bool32
		wantWrite vk.Bool32
	}{
		{"filled depth", VulkanPipelineConfig{DepthTest: true, DepthWrite: true}, vk.PolygonModeFill, vk.True, vk.True},
		{"wireframe test only", VulkanPipelineConfig{IsWireframe: true, DepthTest: true}, vk.PolygonModeLine, vk.True, vk.False},
		{"no depth", VulkanPipelineConfig{}, vk.PolygonModeFill, vk.False, vk.False},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Stride = VertexStride
			tt.config.Attributes = VertexAttributes()
			s := newPipelineStates(&tt.config)

			if s.rasterization.PolygonMode != tt.wantMode {
				t.Errorf("PolygonMode = %d, want %d", s.rasterization.PolygonMode, tt.wantMode)
			}
			if s.depthStencil.DepthTestEnable != tt.wantTest || s.depthStencil.DepthWriteEnable != tt.wantWrite {
				t.Errorf("depth test/write = %d/%d, want %d/%d",
					s.depthStencil.DepthTestEnable, s.depthStencil.DepthWriteEnable, tt.wantTest, tt.wantWrite)
			}
			if s.vertexInput.PVertexBindingDescriptions[0].Stride != VertexStride ||
				s.vertexInput.VertexAttributeDescriptionCount != uint32(len(tt.config.Attributes)) {
				t.Error("vertex input does not match the vertex layout")
			}
			if s.dynamic.DynamicStateCount != 2 || s.viewport.ViewportCount != 1 {
				t.Error("viewport and scissor are not dynamic")
			}
		})
	}
}

func TestCreateShaderModuleRejectsEmptyCode(t *testing.T) {
	module, err := (&DeviceContext{}).CreateShaderModule(nil)
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("CreateShaderModule(nil) error = %v, want configuration error", err)
	}
	if module != vk.NullShaderModule {
		t.Fatal("CreateShaderModule(nil) returned a module")
	}
}
