package viewpoint

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects which hosted model variant serves each request.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModePro      Mode = "pro"
)

// Framing selects whether the rotation isolates the main object or turns
// the camera around the full scene.
type Framing string

const (
	FramingObject Framing = "object"
	FramingScene  Framing = "scene"
)

// Canonical lists the four camera/object orientations a photo can show.
var Canonical = []string{"front", "side", "top", "back"}

// ViewCount is how many missing viewpoints are derived per run.
const ViewCount = 3

type modelPair struct {
	Text  string
	Image string
}

var models = map[Mode]modelPair{
	ModeStandard: {Text: "gemini-2.5-flash", Image: "gemini-2.5-flash-image"},
	ModePro:      {Text: "gemini-3-pro-preview", Image: "gemini-3-pro-image-preview"},
}

type StylePreset struct {
	Key    string
	Name   string
	Suffix string // empty for the default style
}

const DefaultStyle = "default"

var stylePresets = map[string]StylePreset{
	DefaultStyle: {
		Key:  DefaultStyle,
		Name: "Photorealistic",
	},
	"clay_render": {
		Key:    "clay_render",
		Name:   "Clay Render",
		Suffix: "Render the result as a matte clay 3D model: uniform light-gray material, soft studio lighting, no surface textures or branding, subtle ambient occlusion.",
	},
	"line_art": {
		Key:    "line_art",
		Name:   "Line Art",
		Suffix: "Render the result as clean technical line art: black ink contour lines on a white background, no shading fills, drafting-table precision.",
	},
	"studio_product": {
		Key:    "studio_product",
		Name:   "Studio Product",
		Suffix: "Render the result as premium studio product photography: seamless neutral backdrop, controlled softbox lighting, gentle reflection under the subject, tack-sharp focus.",
	},
	"cinematic": {
		Key:    "cinematic",
		Name:   "Cinematic",
		Suffix: "Render the result with cinematic color grading: filmic contrast, shallow depth of field, subtle halation, moody directional key light.",
	},
	"watercolor": {
		Key:    "watercolor",
		Name:   "Watercolor",
		Suffix: "Render the result as a delicate watercolor illustration: soft pigment washes, visible paper grain, loose but accurate proportions.",
	},
}

// styleOrder keeps selector listings deterministic.
var styleOrder = []string{DefaultStyle, "clay_render", "line_art", "studio_product", "cinematic", "watercolor"}

var aspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:5":  {},
	"3:4":  {},
	"16:9": {},
	"9:16": {},
}

const DefaultAspectRatio = "1:1"

func NormalizeMode(value string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModePro:
		return ModePro
	default:
		return ModeStandard
	}
}

func NormalizeFraming(value string) Framing {
	switch Framing(strings.ToLower(strings.TrimSpace(value))) {
	case FramingScene:
		return FramingScene
	default:
		return FramingObject
	}
}

func NormalizeStyle(value string) string {
	key := strings.ToLower(strings.TrimSpace(value))
	if _, ok := stylePresets[key]; ok {
		return key
	}
	return DefaultStyle
}

// NormalizeAspectRatio validates an a:b ratio against the fixed catalog.
// Unknown or malformed values fall back to the default.
func NormalizeAspectRatio(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return DefaultAspectRatio
	}
	a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errA != nil || errB != nil || a <= 0 || b <= 0 {
		return DefaultAspectRatio
	}
	normalized := fmt.Sprintf("%d:%d", a, b)
	if _, ok := aspectRatios[normalized]; !ok {
		return DefaultAspectRatio
	}
	return normalized
}

// TextModel returns the prompt-derivation model for the mode.
func (m Mode) TextModel() string {
	if pair, ok := models[m]; ok {
		return pair.Text
	}
	return models[ModeStandard].Text
}

// ImageModel returns the rendering model for the mode.
func (m Mode) ImageModel() string {
	if pair, ok := models[m]; ok {
		return pair.Image
	}
	return models[ModeStandard].Image
}

// Styles returns the fixed style catalog in selector order.
func Styles() []StylePreset {
	out := make([]StylePreset, 0, len(styleOrder))
	for _, key := range styleOrder {
		out = append(out, stylePresets[key])
	}
	return out
}

// StyleName returns the display name for a style key.
func StyleName(key string) string {
	return stylePresets[NormalizeStyle(key)].Name
}

// NextStyle cycles to the following style key in catalog order.
func NextStyle(key string) string {
	key = NormalizeStyle(key)
	for i, k := range styleOrder {
		if k == key {
			return styleOrder[(i+1)%len(styleOrder)]
		}
	}
	return DefaultStyle
}

// AspectRatios returns the fixed ratio catalog in selector order.
func AspectRatios() []string {
	return []string{"1:1", "4:5", "3:4", "16:9", "9:16"}
}

// NextAspectRatio cycles to the following ratio in catalog order.
func NextAspectRatio(value string) string {
	value = NormalizeAspectRatio(value)
	order := AspectRatios()
	for i, r := range order {
		if r == value {
			return order[(i+1)%len(order)]
		}
	}
	return DefaultAspectRatio
}
