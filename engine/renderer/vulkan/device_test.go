package vulkan

import (
	"errors"
	"reflect"
	"testing"

	vk "github.com/goki/vulkan"
)

func family(flags vk.QueueFlagBits) vk.QueueFamilyProperties {
	return vk.QueueFamilyProperties{QueueFlags: vk.QueueFlags(flags), QueueCount: 1}
}

func TestSelectQueueFamilies(t *testing.T) {
	tests := []struct {
		name     string
		families []vk.QueueFamilyProperties
		present  map[uint32]bool
		want     queueFamilyIndices
		wantOK   bool
	}{
		{
			name:     "combined family preferred",
			families: []vk.QueueFamilyProperties{family(vk.QueueGraphicsBit), family(vk.QueueComputeBit), family(vk.QueueGraphicsBit)},
			present:  map[uint32]bool{1: true, 2: true},
			want:     queueFamilyIndices{Graphics: 2, Present: 2},
			wantOK:   true,
		},
		{
			name:     "separate families",
			families: []vk.QueueFamilyProperties{family(vk.QueueGraphicsBit), family(vk.QueueTransferBit)},
			present:  map[uint32]bool{1: true},
			want:     queueFamilyIndices{Graphics: 0, Present: 1},
			wantOK:   true,
		},
		{
			name:     "no present support",
			families: []vk.QueueFamilyProperties{family(vk.QueueGraphicsBit)},
			present:  map[uint32]bool{},
			wantOK:   false,
		},
		{
			name:     "no graphics",
			families: []vk.QueueFamilyProperties{family(vk.QueueComputeBit)},
			present:  map[uint32]bool{0: true},
			wantOK:   false,
		},
		{
			name:     "empty queue count ignored",
			families: []vk.QueueFamilyProperties{{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit)}, family(vk.QueueGraphicsBit)},
			present:  map[uint32]bool{0: true, 1: true},
			want:     queueFamilyIndices{Graphics: 1, Present: 1},
			wantOK:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := selectQueueFamilies(tt.families, func(i uint32) (bool, error) {
				return tt.present[i], nil
			})
			if err != nil {
				t.Fatalf("selectQueueFamilies() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSelectQueueFamiliesQueryError(t *testing.T) {
	boom := errors.New("surface lost")
	_, _, err := selectQueueFamilies([]vk.QueueFamilyProperties{family(vk.QueueGraphicsBit)}, func(uint32) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
}

func TestPickDepthFormat(t *testing.T) {
	only := func(formats ...vk.Format) func(vk.Format) bool {
		return func(f vk.Format) bool {
			for _, s := range formats {
				if s == f {
					return true
				}
			}
			return false
		}
	}
	tests := []struct {
		name      string
		preferred vk.Format
		supported func(vk.Format) bool
		want      vk.Format
		wantOK    bool
	}{
		{"preferred supported", vk.FormatD16Unorm, only(vk.FormatD16Unorm, vk.FormatD32Sfloat), vk.FormatD16Unorm, true},
		{"fallback order", vk.FormatD16Unorm, only(vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint), vk.FormatD32SfloatS8Uint, true},
		{"color preference ignored", vk.FormatR8g8b8a8Unorm, only(vk.FormatR8g8b8a8Unorm, vk.FormatD32Sfloat), vk.FormatD32Sfloat, true},
		{"nothing supported", vk.FormatD16Unorm, only(), vk.FormatUndefined, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickDepthFormat(tt.preferred, tt.supported)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("pickDepthFormat() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDeviceTypeScore(t *testing.T) {
	if !(deviceTypeScore(vk.PhysicalDeviceTypeDiscreteGpu) > deviceTypeScore(vk.PhysicalDeviceTypeIntegratedGpu) &&
		deviceTypeScore(vk.PhysicalDeviceTypeIntegratedGpu) > deviceTypeScore(vk.PhysicalDeviceTypeVirtualGpu) &&
		deviceTypeScore(vk.PhysicalDeviceTypeVirtualGpu) > deviceTypeScore(vk.PhysicalDeviceTypeCpu)) {
		t.Fatal("device type scores are not ordered discrete > integrated > virtual > cpu")
	}
}

func TestInstanceExtensions(t *testing.T) {
	window := []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}
	tests := []struct {
		name       string
		validation bool
		goos       string
		want       []string
	}{
		{"linux", false, "linux", []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}},
		{"linux with validation", true, "linux", []string{"VK_KHR_surface", "VK_KHR_xcb_surface", vk.ExtDebugReportExtensionName}},
		{"darwin", false, "darwin", []string{
			"VK_KHR_surface", "VK_KHR_xcb_surface",
			"VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := instanceExtensions(window, tt.validation, tt.goos)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("instanceExtensions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSharedQueue(t *testing.T) {
	if !(&VulkanDevice{GraphicsQueueIndex: 1, PresentQueueIndex: 1}).SharedQueue() {
		t.Error("same family reported as not shared")
	}
	if (&VulkanDevice{GraphicsQueueIndex: 0, PresentQueueIndex: 1}).SharedQueue() {
		t.Error("different families reported as shared")
	}
}
