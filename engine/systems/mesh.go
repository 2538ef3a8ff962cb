package systems

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// UniformBufferObject is the block bound at binding 1 of a StandardMaterial.
type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

func (u *UniformBufferObject) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(u)), unsafe.Sizeof(*u))
}

type MeshConfig struct {
	Name     string
	Vertices []vulkan.Vertex
	Indices  []uint32
	// Texture name resolved through the TextureSystem. Empty means the
	// default texture.
	Texture string
}

// Mesh is indexed geometry drawn with a StandardMaterial. Its buffers live in
// device-local memory and are filled through the staging buffer.
type Mesh struct {
	ID        uuid.UUID
	Name      string
	Transform *pmath.Transform

	material   *StandardMaterial
	textures   *TextureSystem
	staging    *vulkan.StagingBuffer
	vertices   *vulkan.Buffer
	indices    *vulkan.Buffer
	uniform    *vulkan.Buffer
	indexCount uint32
	texture    string
	set        int
}

func NewMesh(r *vulkan.VulkanRenderer, material *StandardMaterial, textures *TextureSystem, config MeshConfig) (*Mesh, error) {
	if len(config.Vertices) == 0 || len(config.Indices) == 0 {
		return nil, core.NewConfigurationError("mesh '%s' has no geometry", config.Name)
	}
	texture := config.Texture
	if texture == "" {
		texture = DefaultTextureName
	}

	m := &Mesh{
		ID:         uuid.New(),
		Name:       config.Name,
		Transform:  pmath.TransformCreate(),
		material:   material,
		textures:   textures,
		staging:    r.Staging(),
		indexCount: uint32(len(config.Indices)),
		set:        -1,
	}
	if err := m.upload(r.Context(), config); err != nil {
		m.Destroy()
		return nil, err
	}

	tex, err := textures.Acquire(texture)
	if err != nil {
		m.Destroy()
		return nil, err
	}
	m.texture = texture

	if m.set, err = material.AcquireSet(); err != nil {
		m.set = -1
		m.Destroy()
		return nil, err
	}
	material.WriteSet(m.set, tex, m.uniform)

	core.LogDebug("Mesh '%s' (%s) created: %d vertices, %d indices.", m.Name, m.ID, len(config.Vertices), len(config.Indices))
	return m, nil
}

func (m *Mesh) upload(context *vulkan.DeviceContext, config MeshConfig) error {
	vertexData := vulkan.VertexBytes(config.Vertices)
	indexData := vulkan.IndexBytes(config.Indices)

	var err error
	if m.vertices, err = vulkan.NewVertexBuffer(context, uint64(len(vertexData))); err != nil {
		return err
	}
	if err := m.staging.Upload(vertexData, m.vertices); err != nil {
		return err
	}
	if m.indices, err = vulkan.NewIndexBuffer(context, uint64(len(indexData))); err != nil {
		return err
	}
	if err := m.staging.Upload(indexData, m.indices); err != nil {
		return err
	}

	ubo := UniformBufferObject{Model: mgl32.Ident4(), View: mgl32.Ident4(), Proj: mgl32.Ident4()}
	if m.uniform, err = vulkan.NewUniformBuffer(context, uint64(len(ubo.bytes()))); err != nil {
		return err
	}
	return m.UpdateUniforms(ubo)
}

// UpdateUniforms uploads ubo through the staging buffer. Call between frames.
func (m *Mesh) UpdateUniforms(ubo UniformBufferObject) error {
	return m.staging.Upload(ubo.bytes(), m.uniform)
}

// Update recomputes the uniforms from the mesh transform and camera.
func (m *Mesh) Update(camera *Camera) error {
	return m.UpdateUniforms(UniformBufferObject{
		Model: m.Transform.GetWorld(),
		View:  camera.View(),
		Proj:  camera.Projection(),
	})
}

// SetTexture points the mesh at tex, taking over one reference to name from
// the caller. The device is idled first since in-flight frames may still
// sample the previous texture.
func (m *Mesh) SetTexture(name string, tex *vulkan.Texture) error {
	if err := m.material.context.WaitIdle(); err != nil {
		return err
	}
	m.material.WriteSet(m.set, tex, m.uniform)
	if m.texture != "" {
		m.textures.Release(m.texture)
	}
	m.texture = name
	return nil
}

// Draw records the mesh into cmd. The material must already be bound.
func (m *Mesh) Draw(cmd vk.CommandBuffer) {
	m.material.BindSet(cmd, m.set)
	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{m.vertices.Handle}, []vk.DeviceSize{0})
	vk.CmdBindIndexBuffer(cmd, m.indices.Handle, 0, vk.IndexTypeUint32)
	vk.CmdDrawIndexed(cmd, m.indexCount, 1, 0, 0, 0)
}

// Destroy frees the buffers and returns the descriptor set and texture. Call
// only while no frame in flight uses the mesh.
func (m *Mesh) Destroy() {
	if m.set >= 0 {
		if err := m.material.ReleaseSet(m.set); err != nil {
			core.LogError("mesh '%s': %s", m.Name, err)
		}
		m.set = -1
	}
	if m.texture != "" {
		m.textures.Release(m.texture)
		m.texture = ""
	}
	for _, b := range []*vulkan.Buffer{m.vertices, m.indices, m.uniform} {
		if b != nil {
			b.Destroy()
		}
	}
	m.vertices, m.indices, m.uniform = nil, nil, nil
}

// Quad returns a unit quad in the xy plane, centered on the origin and
// facing +z.
func Quad(name, texture string) MeshConfig {
	return MeshConfig{
		Name: name,
		Vertices: []vulkan.Vertex{
			{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}, UV: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec3{0, 1, 0}, UV: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}, UV: mgl32.Vec2{0, 1}},
			{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, UV: mgl32.Vec2{1, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
		Texture: texture,
	}
}
