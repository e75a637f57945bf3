package modeljson

import (
	"errors"
	"reflect"
	"testing"
)

func TestStripFences(t *testing.T) {
	in := "```json\n{\"prompts\": []}\n```"
	if got := StripFences(in); got != `{"prompts": []}` {
		t.Errorf("StripFences = %q", got)
	}

	if got := StripFences("no fences here"); got != "no fences here" {
		t.Errorf("plain text changed: %q", got)
	}
}

func TestExtractIsland(t *testing.T) {
	got, err := ExtractIsland(`Sure! Here you go: {"prompts": ["a"]} Hope that helps.`)
	if err != nil {
		t.Fatalf("ExtractIsland: %v", err)
	}
	if got != `{"prompts": ["a"]}` {
		t.Errorf("island = %q", got)
	}

	got, err = ExtractIsland(`["a", "b"] trailing`)
	if err != nil {
		t.Fatalf("bare array: %v", err)
	}
	if got != `["a", "b"]` {
		t.Errorf("array island = %q", got)
	}

	if _, err := ExtractIsland("nothing structured"); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestDecodePrompts(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "fenced envelope with commentary",
			raw:  "Here are the views:\n```json\n{\"prompts\": [\" front \", \"side\", \"top\"]}\n```\nEnjoy!",
			want: []string{"front", "side", "top"},
		},
		{
			name: "more than three are truncated",
			raw:  `{"prompts": ["a", "b", "c", "d", "e"]}`,
			want: []string{"a", "b", "c"},
		},
		{
			name: "empty entries are skipped",
			raw:  `{"prompts": ["a", "  ", "b", "", "c"]}`,
			want: []string{"a", "b", "c"},
		},
		{
			name: "bare top-level array fallback",
			raw:  `["left view", "top view", "back view"]`,
			want: []string{"left view", "top view", "back view"},
		},
		{
			name:    "too few valid entries",
			raw:     `{"prompts": ["a", "b"]}`,
			wantErr: true,
		},
		{
			name:    "unparsable island",
			raw:     "{prompts: not json}",
			wantErr: true,
		},
		{
			name:    "no json at all",
			raw:     "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "wrong field",
			raw:     `{"views": ["a", "b", "c"]}`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodePrompts(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("err = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodePrompts: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("prompts = %v, want %v", got, tc.want)
			}
		})
	}
}
