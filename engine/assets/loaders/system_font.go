package loaders

import (
	"fmt"

	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"

	"github.com/spaghettifunk/anima-content/engine/resources"
)

type SystemFontLoader struct{}

func (fl *SystemFontLoader) Load(name string, data []byte, params interface{}) (*resources.Resource, error) {
	f, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font '%s': %w", name, err)
	}

	rd := &resources.SystemFontResourceData{
		FontBinary: f,
		BinarySize: uint64(len(data)),
	}

	var buf sfnt.Buffer
	for i := 0; i < f.NumFonts(); i++ {
		face, err := f.Font(i)
		if err != nil {
			return nil, err
		}
		faceName, err := face.Name(&buf, sfnt.NameIDFull)
		if err != nil {
			// Unnamed faces are still usable by index.
			faceName = fmt.Sprintf("%s#%d", name, i)
		}
		rd.Faces = append(rd.Faces, faceName)
	}

	return &resources.Resource{
		Name:     name,
		Type:     resources.ResourceTypeSystemFont,
		DataSize: uint64(len(data)),
		Data:     rd,
	}, nil
}

func (fl *SystemFontLoader) Unload(resource *resources.Resource) error {
	if resource != nil {
		resource.Data = nil
		resource.DataSize = 0
	}
	return nil
}
