package systems

import (
	"runtime"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

type SystemManager struct {
	CameraSystem  *CameraSystem
	JobSystem     *JobSystem
	TextureSystem *TextureSystem

	renderer  *vulkan.VulkanRenderer
	assets    *assets.AssetManager
	materials map[string]*StandardMaterial
	meshes    []*Mesh
}

func NewSystemManager(r *vulkan.VulkanRenderer, am *assets.AssetManager) (*SystemManager, error) {
	js, err := NewJobSystem(runtime.NumCPU(), 64)
	if err != nil {
		return nil, err
	}
	cs, err := NewCameraSystem(100)
	if err != nil {
		return nil, err
	}
	ts, err := NewTextureSystem(1000, js, am, rendererTextures{renderer: r})
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		CameraSystem:  cs,
		JobSystem:     js,
		TextureSystem: ts,
		renderer:      r,
		assets:        am,
		materials:     make(map[string]*StandardMaterial),
	}, nil
}

// Initialize uploads the default texture and builds the default material.
func (sm *SystemManager) Initialize() error {
	if err := sm.TextureSystem.Initialize(); err != nil {
		return err
	}
	capacity := sm.renderer.Context().Config().DescriptorPoolCapacity
	if _, err := sm.CreateMaterial(DefaultMaterialConfig(capacity)); err != nil {
		return err
	}
	return nil
}

// CreateMaterial builds a material and subscribes it to shader changes.
func (sm *SystemManager) CreateMaterial(config MaterialConfig) (*StandardMaterial, error) {
	if _, exists := sm.materials[config.Name]; exists {
		return nil, errors.Newf("material '%s' already exists", config.Name)
	}
	m, err := NewStandardMaterial(sm.renderer, sm.assets, config)
	if err != nil {
		return nil, err
	}
	sm.materials[config.Name] = m
	sm.assets.OnChange(m.OnAssetChanged)
	return m, nil
}

func (sm *SystemManager) Material(name string) (*StandardMaterial, bool) {
	m, ok := sm.materials[name]
	return m, ok
}

// CreateMesh uploads a mesh drawn with the named material on every frame.
func (sm *SystemManager) CreateMesh(material string, config MeshConfig) (*Mesh, error) {
	m, ok := sm.materials[material]
	if !ok {
		return nil, errors.Newf("unknown material '%s'", material)
	}
	mesh, err := NewMesh(sm.renderer, m, sm.TextureSystem, config)
	if err != nil {
		return nil, err
	}
	sm.meshes = append(sm.meshes, mesh)
	return mesh, nil
}

// Update runs finished job callbacks, applies pending shader reloads and
// refreshes the mesh uniforms from the default camera. Call between frames.
func (sm *SystemManager) Update(deltaTime float64) error {
	sm.JobSystem.Update()

	for _, m := range sm.materials {
		if _, err := m.ReloadIfChanged(); errors.Is(err, core.ErrSubmission) {
			return err
		}
	}

	camera := sm.CameraSystem.GetDefault()
	for _, mesh := range sm.meshes {
		if err := mesh.Update(camera); err != nil {
			return err
		}
	}
	return nil
}

// DrawFrame presents one frame with every mesh drawn.
func (sm *SystemManager) DrawFrame() (vulkan.FrameResult, error) {
	return sm.renderer.DrawFrame(func(cmd vk.CommandBuffer) {
		var bound *StandardMaterial
		for _, mesh := range sm.meshes {
			if mesh.material != bound {
				mesh.material.Bind(cmd)
				bound = mesh.material
			}
			mesh.Draw(cmd)
		}
	})
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.renderer.Context().WaitIdle(); err != nil {
		core.LogError(err.Error())
	}
	for _, mesh := range sm.meshes {
		mesh.Destroy()
	}
	sm.meshes = nil
	for name, m := range sm.materials {
		m.Destroy()
		delete(sm.materials, name)
	}
	// workers may still be decoding textures
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	return sm.TextureSystem.Shutdown()
}
