package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

func testMemoryProperties() vk.PhysicalDeviceMemoryProperties {
	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryTypeCount = 3
	props.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	props.MemoryTypes[1].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	props.MemoryTypes[2].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	return props
}

func TestFindMemoryType(t *testing.T) {
	hostCoherent := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	tests := []struct {
		name    string
		filter  uint32
		flags   vk.MemoryPropertyFlags
		want    uint32
		wantErr bool
	}{
		{"device local", 0b111, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), 0, false},
		{"first host visible", 0b111, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit), 1, false},
		{"host coherent", 0b111, hostCoherent, 2, false},
		{"filter excludes match", 0b011, hostCoherent, 0, true},
		{"filter picks later type", 0b100, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit), 2, false},
		{"beyond type count", 0b1000, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findMemoryType(testMemoryProperties(), tt.filter, tt.flags)
			if tt.wantErr {
				if !errors.Is(err, core.ErrConfiguration) {
					t.Fatalf("findMemoryType() error = %v, want configuration error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("findMemoryType() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("findMemoryType() = %d, want %d", got, tt.want)
			}
		})
	}
}
