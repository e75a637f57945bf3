package viewpoint

import (
	"strings"
	"testing"
)

func TestNormalizeMode(t *testing.T) {
	if NormalizeMode(" Pro ") != ModePro {
		t.Error("pro not recognized")
	}
	if NormalizeMode("standard") != ModeStandard {
		t.Error("standard not recognized")
	}
	if NormalizeMode("turbo") != ModeStandard {
		t.Error("unknown mode should fall back to standard")
	}
}

func TestModeModels(t *testing.T) {
	if ModeStandard.ImageModel() != "gemini-2.5-flash-image" {
		t.Errorf("standard image model = %q", ModeStandard.ImageModel())
	}
	if ModePro.TextModel() != "gemini-3-pro-preview" {
		t.Errorf("pro text model = %q", ModePro.TextModel())
	}
	if Mode("bogus").TextModel() != ModeStandard.TextModel() {
		t.Error("unknown mode should use standard models")
	}
}

func TestNormalizeStyle(t *testing.T) {
	if NormalizeStyle("Clay_Render") != "clay_render" {
		t.Error("case-insensitive style lookup failed")
	}
	if NormalizeStyle("vaporwave") != DefaultStyle {
		t.Error("unknown style should fall back to default")
	}
}

func TestNormalizeAspectRatio(t *testing.T) {
	cases := map[string]string{
		"16:9":   "16:9",
		" 4:5 ":  "4:5",
		"7:3":    DefaultAspectRatio, // not in the catalog
		"banana": DefaultAspectRatio,
		"0:1":    DefaultAspectRatio,
		"":       DefaultAspectRatio,
	}
	for in, want := range cases {
		if got := NormalizeAspectRatio(in); got != want {
			t.Errorf("NormalizeAspectRatio(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCycling(t *testing.T) {
	seen := map[string]bool{}
	key := DefaultStyle
	for range styleOrder {
		seen[key] = true
		key = NextStyle(key)
	}
	if key != DefaultStyle {
		t.Errorf("style cycle did not wrap, ended at %q", key)
	}
	if len(seen) != len(styleOrder) {
		t.Errorf("style cycle visited %d of %d styles", len(seen), len(styleOrder))
	}

	if NextAspectRatio("9:16") != "1:1" {
		t.Errorf("aspect cycle did not wrap: %q", NextAspectRatio("9:16"))
	}
}

func TestBuildAnalysisPrompt(t *testing.T) {
	object := BuildAnalysisPrompt(FramingObject)
	if !strings.Contains(object, "front, side, top, back") {
		t.Error("canonical viewpoints missing from analysis prompt")
	}
	if !strings.Contains(object, `{"prompts":`) {
		t.Error("JSON envelope rule missing")
	}
	if !strings.Contains(object, "neutral studio background") {
		t.Error("object framing instruction missing")
	}

	scene := BuildAnalysisPrompt(FramingScene)
	if !strings.Contains(scene, "rotate the camera around the entire scene") {
		t.Error("scene framing instruction missing")
	}
	if strings.Contains(scene, "neutral studio background") {
		t.Error("scene framing should not isolate the object")
	}
}

func TestBuildRenderPrompt(t *testing.T) {
	plain := BuildRenderPrompt("the object seen directly from above", DefaultStyle)
	if strings.Contains(plain, "STYLE (STRICT)") {
		t.Error("default style must not append a style suffix")
	}
	if !strings.Contains(plain, "seen directly from above") {
		t.Error("viewpoint prompt missing")
	}

	styled := BuildRenderPrompt("back view", "line_art")
	if !strings.Contains(styled, "STYLE (STRICT)") || !strings.Contains(styled, "line art") {
		t.Error("style suffix missing for non-default style")
	}
}
