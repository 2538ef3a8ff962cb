package systems

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/resources"
)

/** @brief The name of the default texture. */
const DefaultTextureName string = "default"

// textureUploader turns decoded pixels into GPU textures.
type textureUploader interface {
	CreateTexture(data *resources.ImageResourceData) (*vulkan.Texture, error)
	DestroyTexture(texture *vulkan.Texture)
}

// assetSource is the part of the asset manager the systems load through.
type assetSource interface {
	LoadAsset(name string, resourceType resources.ResourceType, params interface{}) (*resources.Resource, error)
	UnloadAsset(res *resources.Resource) error
}

type textureReference struct {
	referenceCount int
	texture        *vulkan.Texture
	// HasTransparency is set when any pixel has alpha below 255.
	hasTransparency bool
	loading         bool
	waiters         []func(*vulkan.Texture)
}

// TextureSystem loads named textures through the asset manager, uploads them
// once and shares them by reference count. Loads that fail fall back to a
// generated checkerboard.
type TextureSystem struct {
	maxTextureCount int
	defaultTexture  *vulkan.Texture
	textures        map[string]*textureReference

	// sub systems
	jobSystem *JobSystem
	assets    assetSource
	uploader  textureUploader
}

var ErrTooManyTextures = errors.Mark(errors.New("texture system is full"), core.ErrResourceExhausted)

func NewTextureSystem(maxTextureCount int, js *JobSystem, am assetSource, uploader textureUploader) (*TextureSystem, error) {
	if maxTextureCount < 1 {
		return nil, core.NewConfigurationError("max texture count must be > 0")
	}
	return &TextureSystem{
		maxTextureCount: maxTextureCount,
		textures:        make(map[string]*textureReference),
		jobSystem:       js,
		assets:          am,
		uploader:        uploader,
	}, nil
}

// Initialize creates the default texture: a 256x256 checkerboard in 32 pixel cells.
func (ts *TextureSystem) Initialize() error {
	checker := loaders.Checkerboard(256, 32, [4]uint8{255, 255, 255, 255}, [4]uint8{255, 0, 255, 255})
	t, err := ts.uploader.CreateTexture(checker)
	if err != nil {
		return errors.Wrap(err, "create default texture")
	}
	ts.defaultTexture = t
	return nil
}

func (ts *TextureSystem) GetDefaultTexture() *vulkan.Texture {
	return ts.defaultTexture
}

// Acquire loads name synchronously on first use and returns the shared
// texture. A texture that cannot be loaded yields the default texture.
func (ts *TextureSystem) Acquire(name string) (*vulkan.Texture, error) {
	if name == DefaultTextureName {
		return ts.defaultTexture, nil
	}
	if ref, ok := ts.textures[name]; ok {
		ref.referenceCount++
		if ref.loading {
			// still decoding for an AcquireAsync caller
			return ts.defaultTexture, nil
		}
		return ref.texture, nil
	}
	if err := ts.reserve(name); err != nil {
		return nil, err
	}
	ref := ts.textures[name]
	ref.referenceCount++

	data, err := ts.decode(name)
	if err == nil {
		err = ts.finish(name, data)
	}
	if err != nil {
		ts.fail(name, err)
		return ts.defaultTexture, nil
	}
	return ref.texture, nil
}

// AcquireAsync decodes name on the job system and uploads it during a later
// JobSystem.Update. onReady receives the texture, or the default texture
// when loading failed.
func (ts *TextureSystem) AcquireAsync(name string, onReady func(*vulkan.Texture)) error {
	if name == DefaultTextureName {
		onReady(ts.defaultTexture)
		return nil
	}
	if ref, ok := ts.textures[name]; ok {
		ref.referenceCount++
		if ref.loading {
			ref.waiters = append(ref.waiters, onReady)
		} else {
			onReady(ref.texture)
		}
		return nil
	}
	if err := ts.reserve(name); err != nil {
		return err
	}
	ref := ts.textures[name]
	ref.referenceCount++
	ref.waiters = append(ref.waiters, onReady)

	// Kick off a texture loading job. Only handles loading from disk
	// to CPU. GPU upload is handled after completion of this job.
	return ts.jobSystem.Submit(JobTask{
		Name: "texture:" + name,
		Run: func() (interface{}, error) {
			return ts.decode(name)
		},
		OnComplete: func(result interface{}) {
			if err := ts.finish(name, result.(*resources.ImageResourceData)); err != nil {
				ts.fail(name, err)
			}
		},
		OnFailure: func(err error) {
			ts.fail(name, err)
		},
	})
}

// Release drops one reference; the last one destroys the texture. Call only
// while no frame in flight samples it.
func (ts *TextureSystem) Release(name string) {
	if name == DefaultTextureName {
		return
	}
	ref, ok := ts.textures[name]
	if !ok {
		core.LogWarn("texture release failed lookup for '%s'", name)
		return
	}
	ref.referenceCount--
	if ref.referenceCount > 0 {
		return
	}
	if ref.texture != nil && ref.texture != ts.defaultTexture {
		ts.uploader.DestroyTexture(ref.texture)
	}
	delete(ts.textures, name)
	core.LogDebug("Released texture '%s'.", name)
}

// HasTransparency reports whether the loaded texture has any pixel with
// alpha below 255.
func (ts *TextureSystem) HasTransparency(name string) bool {
	ref, ok := ts.textures[name]
	return ok && ref.hasTransparency
}

func (ts *TextureSystem) Len() int {
	return len(ts.textures)
}

func (ts *TextureSystem) Shutdown() error {
	for name, ref := range ts.textures {
		if ref.texture != nil && ref.texture != ts.defaultTexture {
			ts.uploader.DestroyTexture(ref.texture)
		}
		delete(ts.textures, name)
	}
	if ts.defaultTexture != nil {
		ts.uploader.DestroyTexture(ts.defaultTexture)
		ts.defaultTexture = nil
	}
	return nil
}

func (ts *TextureSystem) reserve(name string) error {
	if len(ts.textures) >= ts.maxTextureCount {
		core.LogError("cannot load texture '%s': %d textures loaded", name, len(ts.textures))
		return ErrTooManyTextures
	}
	ts.textures[name] = &textureReference{loading: true}
	return nil
}

func (ts *TextureSystem) decode(name string) (*resources.ImageResourceData, error) {
	res, err := ts.assets.LoadAsset(name, resources.ResourceTypeImage, &resources.ImageResourceParams{})
	if err != nil {
		return nil, err
	}
	data, ok := res.Data.(*resources.ImageResourceData)
	if !ok {
		return nil, errors.Newf("asset %s is not an image", name)
	}
	return data, nil
}

// finish uploads decoded pixels and hands the texture to any waiters. Runs
// on the main thread.
func (ts *TextureSystem) finish(name string, data *resources.ImageResourceData) error {
	ref, ok := ts.textures[name]
	if !ok {
		// released while loading
		return nil
	}
	t, err := ts.uploader.CreateTexture(data)
	if err != nil {
		return err
	}
	ref.texture = t
	ref.hasTransparency = hasTransparency(data.Pixels)
	ref.loading = false
	core.LogDebug("Successfully loaded texture '%s' (%dx%d).", name, data.Width, data.Height)
	ts.notify(ref)
	return nil
}

func (ts *TextureSystem) fail(name string, err error) {
	core.LogError("Failed to load texture '%s', using default: %s", name, err)
	ref, ok := ts.textures[name]
	if !ok {
		return
	}
	ref.texture = ts.defaultTexture
	ref.loading = false
	ts.notify(ref)
}

func (ts *TextureSystem) notify(ref *textureReference) {
	waiters := ref.waiters
	ref.waiters = nil
	for _, w := range waiters {
		w(ref.texture)
	}
}

func hasTransparency(pixels []uint8) bool {
	for i := 3; i < len(pixels); i += 4 {
		if pixels[i] < 255 {
			return true
		}
	}
	return false
}

// rendererTextures uploads through the renderer's staging buffer.
type rendererTextures struct {
	renderer *vulkan.VulkanRenderer
}

func (r rendererTextures) CreateTexture(data *resources.ImageResourceData) (*vulkan.Texture, error) {
	t, err := vulkan.NewTexture(r.renderer.Context(), data.Width, data.Height)
	if err != nil {
		return nil, err
	}
	if err := r.renderer.Staging().UploadTexture(data.Pixels, t); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

func (r rendererTextures) DestroyTexture(texture *vulkan.Texture) {
	texture.Destroy()
}
