package engine

import (
	"context"
	"strings"

	"TraceLens/internal/model"
)

// BoundaryKind tags how the user-turn boundary was located, so callers can
// tell a confident marker match from a heuristic fallback.
type BoundaryKind int

const (
	// BoundaryNotFound means neither a marker nor the user content was
	// located; nothing is excluded from the displayed stream.
	BoundaryNotFound BoundaryKind = iota

	// BoundaryMarker means a known user-turn marker matched.
	BoundaryMarker

	// BoundaryContent means no marker matched but the raw user content was
	// found, so the boundary sits at the content itself.
	BoundaryContent
)

// Boundary is the resolved start of user content within a chat-formatted
// rendering, as both a character offset and a token-count offset.
type Boundary struct {
	Kind        BoundaryKind
	CharOffset  int
	TokenOffset int
}

// userTurnMarkers are the known user-header patterns, tried in priority
// order. The first match wins.
var userTurnMarkers = []string{
	"<|start_header_id|>user<|end_header_id|>", // Llama 3.x
	"<|im_start|>user",                         // ChatML
}

// ResolveBoundary locates where the user turn begins inside the chat
// rendering of messages, so system-prompt tokens can be dropped from the
// displayed stream. It renders without the generation prompt, searches the
// marker list, and falls back to the position of the raw user content. Any
// failure along the way degrades to offset 0; no error escapes.
func ResolveBoundary(ctx context.Context, tok model.Tokenizer, messages []model.ChatMessage, userContent string) Boundary {
	rendered, err := tok.RenderChat(ctx, messages, false)
	if err != nil {
		return Boundary{Kind: BoundaryNotFound}
	}

	kind := BoundaryNotFound
	charOffset := -1
	for _, marker := range userTurnMarkers {
		if idx := strings.Index(rendered, marker); idx != -1 {
			charOffset = idx
			kind = BoundaryMarker
			break
		}
	}
	if charOffset == -1 && userContent != "" {
		if idx := strings.Index(rendered, userContent); idx != -1 {
			charOffset = idx
			kind = BoundaryContent
		}
	}
	if charOffset <= 0 {
		if charOffset == 0 {
			return Boundary{Kind: kind}
		}
		return Boundary{Kind: BoundaryNotFound}
	}

	// Convert the character offset to a token count by tokenizing the prefix
	// without special tokens. Tokenizers need not round-trip offsets exactly;
	// a failed conversion degrades to no exclusion.
	prefixIDs, err := tok.Encode(ctx, rendered[:charOffset], false)
	if err != nil {
		return Boundary{Kind: BoundaryNotFound}
	}

	return Boundary{Kind: kind, CharOffset: charOffset, TokenOffset: len(prefixIDs)}
}
