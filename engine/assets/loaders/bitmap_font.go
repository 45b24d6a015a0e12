package loaders

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/fzipp/bmfont"
	"github.com/spaghettifunk/anima-content/engine/resources"
)

// BitmapFontLoader reads AngelCode .fnt descriptors. Page images are separate
// bundle entries and are loaded as images by the caller.
type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(name string, data []byte, params interface{}) (*resources.Resource, error) {
	desc, err := bmfont.ReadDescriptor(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read bitmap font '%s': %w", name, err)
	}

	outData := &resources.BitmapFontResourceData{
		Face:       desc.Info.Face,
		Size:       uint32(desc.Info.Size),
		LineHeight: int32(desc.Common.LineHeight),
		Baseline:   int32(desc.Common.Base),
		AtlasSizeX: int32(desc.Common.ScaleW),
		AtlasSizeY: int32(desc.Common.ScaleH),
		Glyphs:     make([]*resources.FontGlyph, 0, len(desc.Chars)),
		Kernings:   make([]*resources.FontKerning, 0, len(desc.Kerning)),
		Pages:      make([]*resources.BitmapFontPage, 0, len(desc.Pages)),
	}

	for _, p := range desc.Pages {
		outData.Pages = append(outData.Pages, &resources.BitmapFontPage{
			ID:   int8(p.ID),
			File: p.File,
		})
	}
	sort.Slice(outData.Pages, func(i, j int) bool { return outData.Pages[i].ID < outData.Pages[j].ID })

	for _, g := range desc.Chars {
		outData.Glyphs = append(outData.Glyphs, &resources.FontGlyph{
			Codepoint: g.ID,
			Height:    uint16(g.Height),
			Width:     uint16(g.Width),
			X:         uint16(g.X),
			Y:         uint16(g.Y),
			XAdvance:  int16(g.XAdvance),
			XOffset:   int16(g.XOffset),
			YOffset:   int16(g.YOffset),
			PageID:    uint8(g.Page),
		})
	}
	sort.Slice(outData.Glyphs, func(i, j int) bool { return outData.Glyphs[i].Codepoint < outData.Glyphs[j].Codepoint })

	for p, k := range desc.Kerning {
		outData.Kernings = append(outData.Kernings, &resources.FontKerning{
			Amount:     int16(k.Amount),
			Codepoint0: p.First,
			Codepoint1: p.Second,
		})
	}

	return &resources.Resource{
		Name:     name,
		Type:     resources.ResourceTypeBitmapFont,
		DataSize: uint64(len(data)),
		Data:     outData,
	}, nil
}

func (fl *BitmapFontLoader) Unload(resource *resources.Resource) error {
	if resource != nil && resource.Data != nil {
		if data, ok := resource.Data.(*resources.BitmapFontResourceData); ok {
			data.Glyphs = nil
			data.Pages = nil
			data.Kernings = nil
		}
		resource.Data = nil
		resource.DataSize = 0
	}
	return nil
}
