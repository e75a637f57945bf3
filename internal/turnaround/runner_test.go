package turnaround

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"turnaround-studio/internal/gemini"
	"turnaround-studio/internal/history"
	"turnaround-studio/internal/modeljson"
	"turnaround-studio/internal/viewpoint"
)

type fakeGenerator struct {
	prompts    []string
	deriveErr  error
	renderErr  map[int]error // 1-based view index
	renderSeen []string
}

func (f *fakeGenerator) DerivePrompts(ctx context.Context, img gemini.ImageInput, framing viewpoint.Framing, mode viewpoint.Mode) ([]string, error) {
	if f.deriveErr != nil {
		return nil, f.deriveErr
	}
	return f.prompts, nil
}

func (f *fakeGenerator) RenderView(ctx context.Context, img gemini.ImageInput, viewPrompt, styleKey, aspectRatio string, mode viewpoint.Mode) (string, error) {
	view := len(f.renderSeen) + 1
	if err, ok := f.renderErr[view]; ok {
		return "", err
	}
	f.renderSeen = append(f.renderSeen, viewPrompt)
	return fmt.Sprintf("data:image/png;base64,view%d", view), nil
}

type recordingSink struct {
	runs []history.Run
}

func (r *recordingSink) Record(_ context.Context, run history.Run) error {
	r.runs = append(r.runs, run)
	return nil
}
func (r *recordingSink) Purge(context.Context, time.Duration) (int64, error) { return 0, nil }
func (r *recordingSink) Close() error                                        { return nil }

type stageEvent struct {
	stage Stage
	view  int
}

func collectStages(events *[]stageEvent) Callbacks {
	return Callbacks{
		OnStage: func(stage Stage, view int) {
			*events = append(*events, stageEvent{stage: stage, view: view})
		},
	}
}

func testInput() Input {
	return Input{
		Source:      "test",
		Image:       gemini.ImageInput{DataBase64: "aW1n", MimeType: "image/jpeg"},
		Framing:     viewpoint.FramingObject,
		Style:       viewpoint.DefaultStyle,
		AspectRatio: "1:1",
		Mode:        viewpoint.ModeStandard,
	}
}

func TestRunHappyPath(t *testing.T) {
	gen := &fakeGenerator{prompts: []string{"side view", "top view", "back view"}}
	sink := &recordingSink{}
	r := NewRunner(Options{Generator: gen, Recorder: sink})

	var events []stageEvent
	cb := collectStages(&events)
	var incremental []int
	cb.OnImage = func(view int, img GeneratedImage) {
		incremental = append(incremental, view)
	}

	res, err := r.Run(context.Background(), testInput(), cb)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Images) != 3 {
		t.Fatalf("images = %d, want exactly 3", len(res.Images))
	}
	for i, img := range res.Images {
		if img.Prompt != gen.prompts[i] {
			t.Errorf("image %d prompt = %q, want %q", i, img.Prompt, gen.prompts[i])
		}
		if img.DataURI == "" {
			t.Errorf("image %d has empty data URI", i)
		}
	}

	wantEvents := []stageEvent{
		{StageAnalyzing, 0},
		{StageRendering, 1},
		{StageRendering, 2},
		{StageRendering, 3},
		{StageComplete, 0},
	}
	if !reflect.DeepEqual(events, wantEvents) {
		t.Errorf("stage events = %v, want %v", events, wantEvents)
	}

	if len(incremental) != 3 || incremental[0] != 1 || incremental[2] != 3 {
		t.Errorf("incremental views = %v, want [1 2 3]", incremental)
	}

	if len(sink.runs) != 1 || sink.runs[0].Status != "complete" || sink.runs[0].Views != 3 {
		t.Errorf("recorded run = %+v", sink.runs)
	}
}

func TestRunFailureKeepsPartialResults(t *testing.T) {
	gen := &fakeGenerator{
		prompts:   []string{"side view", "top view", "back view"},
		renderErr: map[int]error{2: errors.New("the model is overloaded")},
	}
	sink := &recordingSink{}
	r := NewRunner(Options{Generator: gen, Recorder: sink})

	var events []stageEvent
	res, err := r.Run(context.Background(), testInput(), collectStages(&events))
	if err == nil {
		t.Fatal("expected failure at view 2")
	}

	if len(res.Images) != 1 {
		t.Fatalf("partial images = %d, want 1", len(res.Images))
	}
	if res.Images[0].Prompt != "side view" {
		t.Errorf("partial prompt = %q", res.Images[0].Prompt)
	}

	last := events[len(events)-1]
	if last.stage != StageFailed || last.view != 2 {
		t.Errorf("last event = %+v, want failed at view 2", last)
	}

	if len(sink.runs) != 1 || sink.runs[0].Status != string(StatusOverloaded) || sink.runs[0].Views != 1 {
		t.Errorf("recorded run = %+v", sink.runs)
	}
}

func TestRunAnalyzeFailureAbortsBeforeRendering(t *testing.T) {
	gen := &fakeGenerator{deriveErr: fmt.Errorf("analyze: %w", modeljson.ErrMalformed)}
	r := NewRunner(Options{Generator: gen})

	var events []stageEvent
	res, err := r.Run(context.Background(), testInput(), collectStages(&events))
	if err == nil {
		t.Fatal("expected analyze failure")
	}
	if len(res.Images) != 0 || len(res.Prompts) != 0 {
		t.Errorf("result should be empty, got %+v", res)
	}
	if len(gen.renderSeen) != 0 {
		t.Errorf("render was called %d times after analyze failure", len(gen.renderSeen))
	}

	wantEvents := []stageEvent{{StageAnalyzing, 0}, {StageFailed, 0}}
	if !reflect.DeepEqual(events, wantEvents) {
		t.Errorf("stage events = %v, want %v", events, wantEvents)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Status
	}{
		{"malformed", fmt.Errorf("analyze: %w", modeljson.ErrMalformed), StatusMalformed},
		{"no image", fmt.Errorf("render view 1: %w", gemini.ErrNoImage), StatusMalformed},
		{"quota word", errors.New("you exceeded your current quota"), StatusQuota},
		{"resource exhausted", errors.New("gemini API 429: RESOURCE_EXHAUSTED"), StatusQuota},
		{"bad key", errors.New("gemini API 400 Bad Request: API key not valid. API_KEY_INVALID"), StatusBadKey},
		{"permission", errors.New("PERMISSION_DENIED: caller lacks access"), StatusBadKey},
		{"overloaded", errors.New("the model is overloaded. please try again"), StatusOverloaded},
		{"503", errors.New("gemini API 503 Service Unavailable: busy"), StatusOverloaded},
		{"generic", errors.New("connection reset by peer"), StatusGeneric},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestMessageIsNonEmptyForAllStatuses(t *testing.T) {
	errs := []error{
		modeljson.ErrMalformed,
		gemini.ErrNoImage,
		errors.New("quota"),
		errors.New("api key"),
		errors.New("overloaded"),
		errors.New("anything else"),
		nil,
	}
	for _, err := range errs {
		if Message(err) == "" {
			t.Errorf("Message(%v) is empty", err)
		}
	}
}
