package vulkan

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
)

// Vertex is the layout every mesh uploads.
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	UV       mgl32.Vec2
}

// VertexStride is the size of one Vertex in bytes.
const VertexStride = uint32(unsafe.Sizeof(Vertex{}))

// VertexAttributes describes Vertex to the pipeline: location 0 position,
// 1 color, 2 texture coordinates.
func VertexAttributes() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Position))},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Color))},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.UV))},
	}
}

// VertexBytes views vertices as raw bytes without copying.
func VertexBytes(vertices []Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*int(VertexStride))
}

// IndexBytes views 32-bit indices as raw bytes without copying.
func IndexBytes(indices []uint32) []byte {
	if len(indices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
}
