package viewpoint

import (
	"fmt"
	"strings"
)

// BuildAnalysisPrompt composes the instruction asking the model to describe
// the three canonical viewpoints missing from the attached photo. The model
// is told to answer with a strict JSON envelope; the caller still parses
// the reply leniently because models decorate output with fences and prose.
func BuildAnalysisPrompt(framing Framing) string {
	var b strings.Builder
	b.Grow(2048)

	b.WriteString("TASK: Viewpoint analysis for a turnaround image set.\n\n")

	b.WriteString("The attached photo shows a subject from one of four canonical viewpoints: ")
	b.WriteString(strings.Join(Canonical, ", "))
	b.WriteString(".\n")
	b.WriteString("1. Identify which canonical viewpoint the photo itself shows.\n")
	b.WriteString(fmt.Sprintf("2. Write exactly %d image-generation prompts, one for each canonical viewpoint NOT shown in the photo.\n\n", ViewCount))

	b.WriteString("PROMPT RULES:\n")
	b.WriteString("- Each prompt must describe the exact same subject as the photo: same shape, proportions, materials, colors, markings.\n")
	b.WriteString("- Each prompt names its target viewpoint explicitly (e.g. \"seen directly from above\").\n")
	b.WriteString("- Never invent parts, text, or branding that the photo does not show.\n")

	switch framing {
	case FramingScene:
		b.WriteString("- Treat the whole scene as the subject: rotate the camera around the entire scene, keeping every element and its spatial arrangement intact.\n")
		b.WriteString("- Preserve the scene's lighting, environment, and atmosphere from the new angle.\n")
	default:
		b.WriteString("- Isolate the main object: place it alone on a clean neutral studio background, ignoring the photo's surroundings.\n")
		b.WriteString("- Keep lighting soft and even so the object's form reads clearly.\n")
	}

	b.WriteString("\nOUTPUT RULES:\n")
	b.WriteString(fmt.Sprintf("- Respond with a single JSON object: {\"prompts\": [\"...\", \"...\", \"...\"]} containing exactly %d strings in viewpoint order.\n", ViewCount))
	b.WriteString("- No Markdown, no commentary, JSON only.\n")

	return strings.TrimSpace(b.String())
}

// BuildRenderPrompt composes the instruction for rendering one missing
// viewpoint from the original photo plus a derived viewpoint prompt,
// appending the style suffix when a non-default style is selected.
func BuildRenderPrompt(viewPrompt, styleKey string) string {
	var b strings.Builder
	b.Grow(1024)

	b.WriteString("TASK: Render one alternate viewpoint of the subject in the attached photo.\n\n")
	b.WriteString("IDENTITY LOCK: the output must show the exact same subject as the photo: same shape, proportions, materials, colors, and markings. Do not substitute or redesign it.\n\n")
	b.WriteString("VIEWPOINT:\n")
	b.WriteString(viewPrompt)
	b.WriteString("\n")

	if preset, ok := stylePresets[NormalizeStyle(styleKey)]; ok && preset.Suffix != "" {
		b.WriteString("\nSTYLE (STRICT):\n")
		b.WriteString(preset.Suffix)
		b.WriteString("\n")
	}

	b.WriteString("\nReturn the result as a single image. No text, no JSON.")

	return strings.TrimSpace(b.String())
}
