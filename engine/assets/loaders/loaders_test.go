package loaders

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-content/engine/resources"
)

const fntDescriptor = `info face="Mono" size=16 bold=0 italic=0 charset="" unicode=1 stretchH=100 smooth=1 aa=1 padding=0,0,0,0 spacing=1,1 outline=0
common lineHeight=18 base=14 scaleW=128 scaleH=64 pages=2 packed=0 alphaChnl=0 redChnl=4 greenChnl=4 blueChnl=4
page id=1 file="mono_1.png"
page id=0 file="mono_0.png"
chars count=2
char id=66 x=10 y=0 width=8 height=12 xoffset=0 yoffset=2 xadvance=9 page=1 chnl=15
char id=65 x=0 y=0 width=8 height=12 xoffset=1 yoffset=2 xadvance=9 page=0 chnl=15
kernings count=1
kerning first=65 second=66 amount=-1
`

func TestTextLoader(t *testing.T) {
	l := &TextLoader{}
	res, err := l.Load("title.txt", []byte("anima"), nil)
	require.NoError(t, err)
	assert.Equal(t, "anima", res.Data)
	assert.Equal(t, uint64(5), res.DataSize)

	require.NoError(t, l.Unload(res))
	assert.Nil(t, res.Data)
	assert.Zero(t, res.DataSize)
}

func TestBinaryLoaderCopies(t *testing.T) {
	l := &BinaryLoader{}
	in := []byte{1, 2, 3}
	res, err := l.Load("blob.bin", in, nil)
	require.NoError(t, err)
	in[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, res.Data)
}

func TestShaderLoader(t *testing.T) {
	l := &ShaderLoader{}
	res, err := l.Load("s.spv", []byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, res.Data)

	_, err = l.Load("bad.spv", []byte{1, 2, 3}, nil)
	assert.Error(t, err)
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(0, 1, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageLoader(t *testing.T) {
	l := &ImageLoader{}
	data := encodePNG(t)

	res, err := l.Load("logo.png", data, nil)
	require.NoError(t, err)
	img, ok := res.Data.(*resources.ImageResourceData)
	require.True(t, ok)
	assert.Equal(t, uint32(1), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	assert.Equal(t, uint8(4), img.ChannelCount)
	assert.Equal(t, []uint8{255, 0, 0, 255, 0, 0, 255, 255}, img.Pixels)

	res, err = l.Load("logo.png", data, &resources.ImageResourceParams{FlipY: true})
	require.NoError(t, err)
	img = res.Data.(*resources.ImageResourceData)
	assert.Equal(t, []uint8{0, 0, 255, 255, 255, 0, 0, 255}, img.Pixels)

	_, err = l.Load("broken.png", []byte("not an image"), nil)
	assert.Error(t, err)
}

func TestBitmapFontLoader(t *testing.T) {
	l := &BitmapFontLoader{}
	res, err := l.Load("mono.fnt", []byte(fntDescriptor), nil)
	require.NoError(t, err)

	font, ok := res.Data.(*resources.BitmapFontResourceData)
	require.True(t, ok)
	assert.Equal(t, "Mono", font.Face)
	assert.Equal(t, uint32(16), font.Size)
	assert.Equal(t, int32(18), font.LineHeight)
	assert.Equal(t, int32(14), font.Baseline)
	assert.Equal(t, int32(128), font.AtlasSizeX)
	assert.Equal(t, int32(64), font.AtlasSizeY)

	require.Len(t, font.Pages, 2)
	assert.Equal(t, "mono_0.png", font.Pages[0].File)
	assert.Equal(t, "mono_1.png", font.Pages[1].File)

	require.Len(t, font.Glyphs, 2)
	assert.Equal(t, 'A', font.Glyphs[0].Codepoint)
	assert.Equal(t, int16(1), font.Glyphs[0].XOffset)
	assert.Equal(t, uint8(1), font.Glyphs[1].PageID)

	require.Len(t, font.Kernings, 1)
	assert.Equal(t, int16(-1), font.Kernings[0].Amount)

	require.NoError(t, l.Unload(res))
	assert.Nil(t, res.Data)
	assert.Nil(t, font.Glyphs)
}

func TestSystemFontLoaderRejectsGarbage(t *testing.T) {
	l := &SystemFontLoader{}
	_, err := l.Load("font.ttf", []byte("definitely not a font"), nil)
	assert.Error(t, err)
}
