package resources

import (
	"strings"

	"golang.org/x/image/font/sfnt"
)

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Unknown or unspecified resource type. The loader is chosen from the file extension. */
	ResourceTypeNone ResourceType = iota
	/** @brief Text resource type. */
	ResourceTypeText
	/** @brief Binary resource type. */
	ResourceTypeBinary
	/** @brief Image resource type. */
	ResourceTypeImage
	/** @brief Shader resource type (SPIR-V bytecode). */
	ResourceTypeShader
	/** @brief Bitmap font resource type. */
	ResourceTypeBitmapFont
	/** @brief System font resource type. */
	ResourceTypeSystemFont
	/** @brief Custom resource type. Used by loaders outside the core engine. */
	ResourceTypeCustom
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeText:
		return "text"
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeImage:
		return "image"
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeBitmapFont:
		return "bitmap_font"
	case ResourceTypeSystemFont:
		return "system_font"
	case ResourceTypeCustom:
		return "custom"
	default:
		return "none"
	}
}

// TypeFromExtension guesses the resource type of an entry from its file extension.
func TypeFromExtension(name string) ResourceType {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ResourceTypeBinary
	}
	switch strings.ToLower(name[i:]) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return ResourceTypeImage
	case ".spv":
		return ResourceTypeShader
	case ".fnt":
		return ResourceTypeBitmapFont
	case ".ttf", ".otf", ".ttc":
		return ResourceTypeSystemFont
	case ".txt", ".json", ".toml", ".xml", ".lua", ".csv", ".shadercfg", ".amt":
		return ResourceTypeText
	default:
		return ResourceTypeBinary
	}
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these. This is the payload handed out by a loaded asset.
 */
type Resource struct {
	/** @brief The identifier of the loader which handles this resource. */
	LoaderID uint32
	/** @brief The name of the resource inside its bundle. */
	Name string
	/** @brief The type the resource was decoded as. */
	Type ResourceType
	/** @brief The size of the encoded resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}

/**
 * @brief A structure to hold image resource data.
 */
type ImageResourceData struct {
	/** @brief The number of channels. */
	ChannelCount uint8
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief The pixel data of the image, RGBA8. */
	Pixels []uint8
}

/** @brief Parameters used when loading an image. */
type ImageResourceParams struct {
	/** @brief Indicates if the image should be flipped on the y-axis when loaded. */
	FlipY bool
}

type FontGlyph struct {
	Codepoint rune
	X         uint16
	Y         uint16
	Width     uint16
	Height    uint16
	XOffset   int16
	YOffset   int16
	XAdvance  int16
	PageID    uint8
}

type FontKerning struct {
	Codepoint0 rune
	Codepoint1 rune
	Amount     int16
}

type BitmapFontPage struct {
	ID   int8
	File string
}

type BitmapFontResourceData struct {
	Face       string
	Size       uint32
	LineHeight int32
	Baseline   int32
	AtlasSizeX int32
	AtlasSizeY int32
	Glyphs     []*FontGlyph
	Kernings   []*FontKerning
	Pages      []*BitmapFontPage
}

type SystemFontResourceData struct {
	FontBinary *sfnt.Collection
	BinarySize uint64
	Faces      []string
}
