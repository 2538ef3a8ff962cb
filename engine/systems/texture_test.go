package systems

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/resources"
)

type fakeAssets struct {
	images map[string]*resources.ImageResourceData
}

func (f *fakeAssets) LoadAsset(name string, resourceType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	data, ok := f.images[name]
	if !ok {
		return nil, errors.Newf("asset %s not found", name)
	}
	return &resources.Resource{Name: name, Type: resourceType, Data: data}, nil
}

func (f *fakeAssets) UnloadAsset(res *resources.Resource) error {
	return nil
}

type fakeUploader struct {
	live    map[*vulkan.Texture]bool
	created int
}

func (f *fakeUploader) CreateTexture(data *resources.ImageResourceData) (*vulkan.Texture, error) {
	if data.Width == 0 {
		return nil, core.NewConfigurationError("texture of size 0")
	}
	t := &vulkan.Texture{Width: data.Width, Height: data.Height}
	f.live[t] = true
	f.created++
	return t, nil
}

func (f *fakeUploader) DestroyTexture(t *vulkan.Texture) {
	delete(f.live, t)
}

func newTestTextureSystem(t *testing.T, max int) (*TextureSystem, *fakeUploader, *JobSystem) {
	t.Helper()
	js, err := NewJobSystem(2, 8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = js.Shutdown() })

	assets := &fakeAssets{images: map[string]*resources.ImageResourceData{
		"wall.png":  {ChannelCount: 4, Width: 2, Height: 1, Pixels: []uint8{1, 2, 3, 255, 4, 5, 6, 255}},
		"glass.png": {ChannelCount: 4, Width: 1, Height: 1, Pixels: []uint8{9, 9, 9, 128}},
		"empty.png": {ChannelCount: 4},
	}}
	up := &fakeUploader{live: map[*vulkan.Texture]bool{}}
	ts, err := NewTextureSystem(max, js, assets, up)
	if err != nil {
		t.Fatal(err)
	}
	if err := ts.Initialize(); err != nil {
		t.Fatal(err)
	}
	return ts, up, js
}

func TestTextureSystemAcquireRelease(t *testing.T) {
	ts, up, _ := newTestTextureSystem(t, 4)
	def := ts.GetDefaultTexture()
	if def == nil || def.Width != 256 {
		t.Fatalf("default texture = %+v", def)
	}

	a, err := ts.Acquire("wall.png")
	if err != nil || a == def || a.Width != 2 {
		t.Fatalf("Acquire(wall) = %+v, %v", a, err)
	}
	b, _ := ts.Acquire("wall.png")
	if a != b || up.created != 2 {
		t.Fatalf("second Acquire uploaded again (created=%d)", up.created)
	}

	ts.Release("wall.png")
	if !up.live[a] {
		t.Fatal("texture destroyed while referenced")
	}
	ts.Release("wall.png")
	if up.live[a] || ts.Len() != 0 {
		t.Fatal("texture not destroyed after last release")
	}
}

func TestTextureSystemFallbacks(t *testing.T) {
	ts, up, _ := newTestTextureSystem(t, 4)
	def := ts.GetDefaultTexture()

	for _, name := range []string{"missing.png", "empty.png"} {
		got, err := ts.Acquire(name)
		if err != nil || got != def {
			t.Errorf("Acquire(%s) = %v, %v, want default texture", name, got, err)
		}
		ts.Release(name)
	}
	if !up.live[def] {
		t.Fatal("releasing a fallback destroyed the default texture")
	}
}

func TestTextureSystemTransparencyAndCapacity(t *testing.T) {
	ts, _, _ := newTestTextureSystem(t, 1)
	if _, err := ts.Acquire("glass.png"); err != nil {
		t.Fatal(err)
	}
	if !ts.HasTransparency("glass.png") {
		t.Error("alpha 128 not reported as transparent")
	}
	if _, err := ts.Acquire("wall.png"); !errors.Is(err, core.ErrResourceExhausted) {
		t.Fatalf("Acquire over capacity error = %v", err)
	}
}

func TestTextureSystemAcquireAsync(t *testing.T) {
	ts, up, js := newTestTextureSystem(t, 4)

	var got []*vulkan.Texture
	onReady := func(tex *vulkan.Texture) { got = append(got, tex) }
	if err := ts.AcquireAsync("wall.png", onReady); err != nil {
		t.Fatal(err)
	}
	if err := ts.AcquireAsync("wall.png", onReady); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(got) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("async texture never became ready")
		}
		js.Update()
		time.Sleep(time.Millisecond)
	}
	if got[0] != got[1] || got[0] == ts.GetDefaultTexture() || up.created != 2 {
		t.Fatalf("async waiters got %v (created=%d)", got, up.created)
	}

	ts.Release("wall.png")
	ts.Release("wall.png")
	if err := ts.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if len(up.live) != 0 {
		t.Fatalf("%d textures leaked after Shutdown", len(up.live))
	}
}
