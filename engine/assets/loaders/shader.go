package loaders

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/resources"
)

// ShaderLoader reads compiled SPIR-V modules (.spv).
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}
	code, err := BytesToBytecode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	return &resources.Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		Type:     resources.ResourceTypeShader,
		DataSize: uint64(len(data)),
		Data:     code,
	}, nil
}

func (sl *ShaderLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}

// BytesToBytecode reinterprets little-endian SPIR-V bytes as words and checks
// the module magic number.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, core.NewConfigurationError("SPIR-V size %d is not a positive multiple of 4", len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if byteCode[0] != resources.SPIRVMagic {
		return nil, core.NewConfigurationError("bad SPIR-V magic %#08x", byteCode[0])
	}
	return byteCode, nil
}
