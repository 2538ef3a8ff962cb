package loaders

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/resources"
)

func spirv(words ...uint32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, append([]uint32{resources.SPIRVMagic}, words...))
	return buf.Bytes()
}

func TestBytesToBytecode(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    int
		wantErr bool
	}{
		{"header only", spirv(), 1, false},
		{"with body", spirv(0x00010000, 7, 42), 4, false},
		{"empty", nil, 0, true},
		{"unaligned", append(spirv(1), 0xff), 0, true},
		{"bad magic", []byte{1, 2, 3, 4}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BytesToBytecode(tt.in)
			if tt.wantErr {
				if !errors.Is(err, core.ErrConfiguration) {
					t.Fatalf("BytesToBytecode() error = %v, want configuration error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("BytesToBytecode() error = %v", err)
			}
			if len(got) != tt.want || got[0] != resources.SPIRVMagic {
				t.Errorf("BytesToBytecode() = %v", got)
			}
		})
	}
}

func TestShaderLoaderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "builtin.vert.spv")
	if err := os.WriteFile(path, spirv(3, 4), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := (&ShaderLoader{}).Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	code, ok := res.Data.([]uint32)
	if !ok || len(code) != 3 || code[2] != 4 {
		t.Fatalf("Load() data = %#v", res.Data)
	}
	if res.Name != "builtin.vert" || res.Type != resources.ResourceTypeShader || res.DataSize != 12 {
		t.Errorf("Load() resource = %+v", res)
	}
}

func TestImageLoaderLoad(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 3))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 2, color.NRGBA{B: 255, A: 255})

	path := filepath.Join(t.TempDir(), "tex.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tests := []struct {
		name     string
		params   interface{}
		firstRed uint8
		lastBlue uint8
	}{
		{"top first", nil, 255, 255},
		{"flipped", &resources.ImageResourceParams{FlipY: true}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := (&ImageLoader{}).Load(path, tt.params)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			data := res.Data.(*resources.ImageResourceData)
			if data.Width != 2 || data.Height != 3 || len(data.Pixels) != 2*3*4 {
				t.Fatalf("Load() = %dx%d, %d bytes", data.Width, data.Height, len(data.Pixels))
			}
			if data.Pixels[0] != tt.firstRed {
				t.Errorf("pixel (0,0) red = %d, want %d", data.Pixels[0], tt.firstRed)
			}
			if got := data.Pixels[len(data.Pixels)-2]; got != tt.lastBlue {
				t.Errorf("last pixel blue = %d, want %d", got, tt.lastBlue)
			}
		})
	}
}

func TestImageLoaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (&ImageLoader{}).Load(path, nil); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("Load() error = %v, want configuration error", err)
	}
}

func TestCheckerboard(t *testing.T) {
	white := [4]uint8{255, 255, 255, 255}
	black := [4]uint8{0, 0, 0, 255}
	data := Checkerboard(4, 2, white, black)
	if len(data.Pixels) != 64 {
		t.Fatalf("len = %d", len(data.Pixels))
	}
	at := func(x, y int) uint8 { return data.Pixels[(y*4+x)*4] }
	if at(0, 0) != 255 || at(2, 0) != 0 || at(0, 2) != 0 || at(3, 3) != 255 {
		t.Error("checkerboard cells misplaced")
	}
}
