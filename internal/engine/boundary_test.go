package engine

import (
	"context"
	"fmt"
	"testing"

	"TraceLens/internal/model"
)

// renderOverrideTokenizer swaps out RenderChat so tests can exercise the
// fallback paths of the boundary resolver.
type renderOverrideTokenizer struct {
	*fakeTokenizer
	render func(messages []model.ChatMessage, addGenerationPrompt bool) (string, error)
}

func (r *renderOverrideTokenizer) RenderChat(_ context.Context, messages []model.ChatMessage, addGenerationPrompt bool) (string, error) {
	return r.render(messages, addGenerationPrompt)
}

func TestResolveBoundaryMarker(t *testing.T) {
	ctx := context.Background()
	tok := &fakeTokenizer{chatTemplate: true}
	messages := []model.ChatMessage{{Role: "user", Content: "2+2="}}

	b := ResolveBoundary(ctx, tok, messages, "2+2=")

	if b.Kind != BoundaryMarker {
		t.Fatalf("kind = %v, want marker", b.Kind)
	}
	// The marker sits right after the BOS + system turn, which tokenizes to
	// ten ids.
	if b.TokenOffset != 10 {
		t.Errorf("token offset = %d, want 10", b.TokenOffset)
	}
	if b.CharOffset <= 0 {
		t.Errorf("char offset = %d, want > 0", b.CharOffset)
	}
}

func TestResolveBoundaryContentFallback(t *testing.T) {
	ctx := context.Background()
	tok := &renderOverrideTokenizer{
		fakeTokenizer: &fakeTokenizer{chatTemplate: true},
		render: func([]model.ChatMessage, bool) (string, error) {
			return "You are helpful.Hello world", nil
		},
	}

	b := ResolveBoundary(ctx, tok, nil, "Hello")

	if b.Kind != BoundaryContent {
		t.Fatalf("kind = %v, want content fallback", b.Kind)
	}
	// Prefix "You are helpful." is four tokens without specials.
	if b.TokenOffset != 4 {
		t.Errorf("token offset = %d, want 4", b.TokenOffset)
	}
}

func TestResolveBoundaryNotFound(t *testing.T) {
	ctx := context.Background()
	tok := &renderOverrideTokenizer{
		fakeTokenizer: &fakeTokenizer{chatTemplate: true},
		render: func([]model.ChatMessage, bool) (string, error) {
			return "nothing recognizable here", nil
		},
	}

	b := ResolveBoundary(ctx, tok, nil, "absent content")
	if b.Kind != BoundaryNotFound {
		t.Fatalf("kind = %v, want not found", b.Kind)
	}
	if b.TokenOffset != 0 || b.CharOffset != 0 {
		t.Errorf("offsets = (%d, %d), want zero", b.CharOffset, b.TokenOffset)
	}
}

func TestResolveBoundaryMarkerAtStart(t *testing.T) {
	ctx := context.Background()
	tok := &renderOverrideTokenizer{
		fakeTokenizer: &fakeTokenizer{chatTemplate: true},
		render: func([]model.ChatMessage, bool) (string, error) {
			return "<|start_header_id|>user<|end_header_id|>\n\nhi<|eot|>", nil
		},
	}

	b := ResolveBoundary(ctx, tok, nil, "hi")
	if b.Kind != BoundaryMarker {
		t.Fatalf("kind = %v, want marker", b.Kind)
	}
	if b.TokenOffset != 0 {
		t.Errorf("token offset = %d, want 0 for marker at start", b.TokenOffset)
	}
}

func TestResolveBoundaryRenderError(t *testing.T) {
	ctx := context.Background()
	tok := &renderOverrideTokenizer{
		fakeTokenizer: &fakeTokenizer{chatTemplate: true},
		render: func([]model.ChatMessage, bool) (string, error) {
			return "", fmt.Errorf("template exploded")
		},
	}

	b := ResolveBoundary(ctx, tok, nil, "hi")
	if b != (Boundary{Kind: BoundaryNotFound}) {
		t.Fatalf("boundary = %+v, want zero value on render failure", b)
	}
}
