package engine

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// DefaultConfigPath is read when no other file is given on the command line.
const DefaultConfigPath = "prism.toml"

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"start_width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"start_height"`
	LogLevel    string `toml:"log_level"`
	// Directory watched for shaders and textures.
	AssetsDir string         `toml:"assets_dir"`
	Renderer  RendererConfig `toml:"renderer"`
}

// RendererConfig is the [renderer] table. Formats and present modes are
// written by name, e.g. "R8G8B8A8_UNORM" or "MAILBOX".
type RendererConfig struct {
	FramesInFlight         int        `toml:"frames_in_flight"`
	StagingBufferSize      uint64     `toml:"staging_buffer_size"`
	DescriptorPoolCapacity int        `toml:"descriptor_pool_capacity"`
	ColorFormat            string     `toml:"color_format"`
	PresentMode            string     `toml:"present_mode"`
	DepthFormat            string     `toml:"depth_format"`
	FenceTimeoutMS         uint64     `toml:"fence_timeout_ms"`
	ClearColor             [4]float32 `toml:"clear_color"`
	Validation             bool       `toml:"validation"`
}

func DefaultApplicationConfig() ApplicationConfig {
	d := vulkan.DefaultConfig()
	return ApplicationConfig{
		Name:        "Prism Testbed",
		StartPosX:   100,
		StartPosY:   100,
		StartWidth:  1280,
		StartHeight: 720,
		LogLevel:    "info",
		AssetsDir:   "assets",
		Renderer: RendererConfig{
			FramesInFlight:         d.FramesInFlight,
			StagingBufferSize:      d.StagingBufferSize,
			DescriptorPoolCapacity: d.DescriptorPoolCapacity,
			ColorFormat:            "R8G8B8A8_UNORM",
			PresentMode:            "IMMEDIATE",
			DepthFormat:            "D16_UNORM",
			FenceTimeoutMS:         d.FenceTimeout / 1_000_000,
			ClearColor:             d.ClearColor,
		},
	}
}

// LoadApplicationConfig reads path over the defaults. A missing file yields
// the defaults unchanged.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogWarn("config file %s not found, using defaults", path)
			return &cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, core.NewConfigurationError("%s:%d:%d: %s", path, row, col, derr.Error())
		}
		return nil, errors.Mark(errors.Wrapf(err, "parse config %s", path), core.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ApplicationConfig) Validate() error {
	if c.StartWidth == 0 || c.StartHeight == 0 {
		return core.NewConfigurationError("window size must be positive, got %dx%d", c.StartWidth, c.StartHeight)
	}
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	_, err := c.Renderer.VulkanConfig(c.Name)
	return err
}

// VulkanConfig converts the TOML table into renderer constants.
func (r RendererConfig) VulkanConfig(appName string) (vulkan.Config, error) {
	cfg := vulkan.DefaultConfig()
	if appName != "" {
		cfg.ApplicationName = appName
	}
	cfg.FramesInFlight = r.FramesInFlight
	cfg.StagingBufferSize = r.StagingBufferSize
	cfg.DescriptorPoolCapacity = r.DescriptorPoolCapacity
	cfg.FenceTimeout = r.FenceTimeoutMS * 1_000_000
	cfg.ClearColor = r.ClearColor
	cfg.EnableValidation = r.Validation

	var err error
	if cfg.PreferredFormat, err = vulkan.ParseFormat(r.ColorFormat); err != nil {
		return cfg, err
	}
	if cfg.PreferredPresentMode, err = vulkan.ParsePresentMode(r.PresentMode); err != nil {
		return cfg, err
	}
	if cfg.DepthFormat, err = vulkan.ParseFormat(r.DepthFormat); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
