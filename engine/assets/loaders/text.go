package loaders

import (
	"github.com/spaghettifunk/anima-content/engine/resources"
)

type TextLoader struct{}

func (tl *TextLoader) Load(name string, data []byte, params interface{}) (*resources.Resource, error) {
	return &resources.Resource{
		Name:     name,
		Type:     resources.ResourceTypeText,
		DataSize: uint64(len(data)),
		Data:     string(data),
	}, nil
}

func (tl *TextLoader) Unload(resource *resources.Resource) error {
	if resource != nil {
		resource.Data = nil
		resource.DataSize = 0
	}
	return nil
}
