package loaders

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-content/engine/resources"
)

type ImageLoader struct{}

func (il *ImageLoader) Load(name string, data []byte, params interface{}) (*resources.Resource, error) {
	flipY := false
	if p, ok := params.(*resources.ImageResourceParams); ok && p != nil {
		flipY = p.FlipY
	}

	img, _, err := image.Decode(bytes.NewReader(data)) // Decodes the image (e.g., PNG, JPEG, BMP, TIFF, WebP)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image '%s': %w", name, err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	if flipY {
		flipRows(rgba.Pix, rgba.Stride, bounds.Dy())
	}

	return &resources.Resource{
		Name:     name,
		Type:     resources.ResourceTypeImage,
		DataSize: uint64(len(data)),
		Data: &resources.ImageResourceData{
			ChannelCount: 4,
			Width:        uint32(bounds.Dx()),
			Height:       uint32(bounds.Dy()),
			Pixels:       rgba.Pix,
		},
	}, nil
}

func (il *ImageLoader) Unload(resource *resources.Resource) error {
	if resource != nil {
		resource.Data = nil
		resource.DataSize = 0
	}
	return nil
}

func flipRows(pix []uint8, stride, height int) {
	row := make([]uint8, stride)
	for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
		t := pix[top*stride : (top+1)*stride]
		b := pix[bottom*stride : (bottom+1)*stride]
		copy(row, t)
		copy(t, b)
		copy(b, row)
	}
}
