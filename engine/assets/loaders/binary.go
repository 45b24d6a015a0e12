package loaders

import (
	"github.com/spaghettifunk/anima-content/engine/resources"
)

type BinaryLoader struct{}

func (bl *BinaryLoader) Load(name string, data []byte, params interface{}) (*resources.Resource, error) {
	buf := make([]byte, len(data))
	copy(buf, data)

	return &resources.Resource{
		Name:     name,
		Type:     resources.ResourceTypeBinary,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

func (bl *BinaryLoader) Unload(resource *resources.Resource) error {
	if resource != nil {
		resource.Data = nil
		resource.DataSize = 0
	}
	return nil
}
