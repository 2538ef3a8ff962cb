package loaders

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/resources"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageLoader decodes PNG, JPEG, BMP, TIFF and WebP files into RGBA8 pixels
// ready for a staged texture upload.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	var flipY bool
	if p, ok := params.(*resources.ImageResourceParams); ok && p != nil {
		flipY = p.FlipY
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode image %s", path), core.ErrConfiguration)
	}
	core.LogDebug("decoded %s image %s", format, path)

	data := ToRGBA(img, flipY)
	return &resources.Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		Type:     resources.ResourceTypeImage,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (il *ImageLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}

// ToRGBA converts any decoded image to tightly packed RGBA8 rows.
func ToRGBA(img image.Image, flipY bool) *resources.ImageResourceData {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	rowBytes := b.Dx() * 4
	pixels := make([]uint8, rowBytes*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		srcY := y
		if flipY {
			srcY = b.Dy() - 1 - y
		}
		copy(pixels[y*rowBytes:(y+1)*rowBytes], rgba.Pix[srcY*rgba.Stride:srcY*rgba.Stride+rowBytes])
	}
	return &resources.ImageResourceData{
		ChannelCount: 4,
		Width:        uint32(b.Dx()),
		Height:       uint32(b.Dy()),
		Pixels:       pixels,
	}
}

// Checkerboard generates a size x size RGBA8 image with cell x cell squares
// alternating between a and b.
func Checkerboard(size, cell uint32, a, b [4]uint8) *resources.ImageResourceData {
	pixels := make([]uint8, size*size*4)
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			c := a
			if ((x/cell)+(y/cell))%2 == 1 {
				c = b
			}
			copy(pixels[(y*size+x)*4:], c[:])
		}
	}
	return &resources.ImageResourceData{ChannelCount: 4, Width: size, Height: size, Pixels: pixels}
}
