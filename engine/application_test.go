package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prism.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadApplicationConfigMissingFile(t *testing.T) {
	cfg, err := LoadApplicationConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadApplicationConfig() error = %v", err)
	}
	if *cfg != DefaultApplicationConfig() {
		t.Errorf("missing file did not yield defaults: %+v", cfg)
	}
}

func TestLoadApplicationConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
name = "demo"
start_width = 640

[renderer]
frames_in_flight = 3
present_mode = "mailbox"
color_format = "B8G8R8A8_SRGB"
fence_timeout_ms = 250
`)
	cfg, err := LoadApplicationConfig(path)
	if err != nil {
		t.Fatalf("LoadApplicationConfig() error = %v", err)
	}
	if cfg.Name != "demo" || cfg.StartWidth != 640 || cfg.StartHeight != 720 {
		t.Errorf("window fields = %+v", cfg)
	}

	vc, err := cfg.Renderer.VulkanConfig(cfg.Name)
	if err != nil {
		t.Fatalf("VulkanConfig() error = %v", err)
	}
	if vc.ApplicationName != "demo" || vc.FramesInFlight != 3 {
		t.Errorf("VulkanConfig() = %+v", vc)
	}
	if vc.PreferredPresentMode != vk.PresentModeMailbox || vc.PreferredFormat != vk.FormatB8g8r8a8Srgb {
		t.Errorf("format/mode = %d/%d", vc.PreferredFormat, vc.PreferredPresentMode)
	}
	if vc.DepthFormat != vk.FormatD16Unorm {
		t.Errorf("DepthFormat = %d, want default D16", vc.DepthFormat)
	}
	if vc.FenceTimeout != 250_000_000 {
		t.Errorf("FenceTimeout = %d", vc.FenceTimeout)
	}
}

func TestLoadApplicationConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "name = \n"},
		{"zero width", "start_width = 0\n"},
		{"bad log level", "log_level = \"loud\"\n"},
		{"bad format", "[renderer]\ncolor_format = \"R5G6B5\"\n"},
		{"bad present mode", "[renderer]\npresent_mode = \"VSYNC\"\n"},
		{"no frames", "[renderer]\nframes_in_flight = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadApplicationConfig(writeConfig(t, tt.body))
			if !errors.Is(err, core.ErrConfiguration) {
				t.Fatalf("LoadApplicationConfig() error = %v, want configuration error", err)
			}
		})
	}
}
