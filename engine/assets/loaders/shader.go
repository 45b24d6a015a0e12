package loaders

import (
	"fmt"

	"github.com/spaghettifunk/anima-content/engine/resources"
)

type ShaderLoader struct{}

func (sl *ShaderLoader) Load(name string, data []byte, params interface{}) (*resources.Resource, error) {
	// SPIR-V is a stream of little-endian 32 bit words.
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("shader '%s' has a size of %d bytes, which is not a multiple of 4", name, len(data))
	}
	res := bytesToBytecode(data)

	return &resources.Resource{
		Name:     name,
		Type:     resources.ResourceTypeShader,
		DataSize: uint64(len(data)),
		Data:     res,
	}, nil
}

func (sl *ShaderLoader) Unload(resource *resources.Resource) error {
	if resource != nil {
		resource.Data = nil
		resource.DataSize = 0
	}
	return nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
