package resources

type ResourceType int

/** @brief Resource types the asset manager knows how to load. */
const (
	/** @brief Files the asset manager ignores. */
	ResourceTypeNone ResourceType = iota
	/** @brief Compiled SPIR-V shader module. */
	ResourceTypeShader
	/** @brief Image decoded to RGBA8. */
	ResourceTypeImage
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeImage:
		return "image"
	default:
		return "none"
	}
}

/** @brief The first word of every SPIR-V module. */
const SPIRVMagic uint32 = 0x07230203

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	Type     ResourceType
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data: []uint32 for shaders, *ImageResourceData for images. */
	Data interface{}
}

/**
 * @brief A structure to hold image resource data.
 */
type ImageResourceData struct {
	/** @brief The number of channels. Always 4 after decoding. */
	ChannelCount uint8
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief Tightly packed RGBA8 rows, top row first unless flipped. */
	Pixels []uint8
}

/** @brief Parameters used when loading an image. */
type ImageResourceParams struct {
	/** @brief Indicates if the image should be flipped on the y-axis when loaded. */
	FlipY bool
}
