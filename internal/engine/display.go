package engine

import (
	"context"
	"strconv"
	"strings"

	"TraceLens/internal/model"
)

// wordBoundaryMarker is the byte-level BPE prefix that denotes a leading
// space. It stays visible in displayed tokens so the UI can show word
// boundaries, even though plain decoding turns it into " ".
const wordBoundaryMarker = "Ġ"

// DisplayToken decodes a single token id for display. When the raw sub-token
// carries the word-boundary marker, the marker is re-inserted in front of the
// decoded text. Decoding failures fall back to the raw sub-token; if that
// fails too, the id itself is shown. The same rule applies everywhere a token
// is rendered: prompt tokens, generated tokens and candidates.
func DisplayToken(ctx context.Context, tok model.Tokenizer, id int) string {
	raw, rawErr := tok.RawSubtoken(ctx, id)
	decoded, decErr := tok.Decode(ctx, []int{id})

	if decErr != nil {
		if rawErr != nil {
			return "<" + strconv.Itoa(id) + ">"
		}
		return raw
	}
	if rawErr != nil {
		return decoded
	}

	if strings.HasPrefix(raw, wordBoundaryMarker) {
		if strings.HasPrefix(decoded, " ") {
			return wordBoundaryMarker + decoded[1:]
		}
		// Decoding lost the boundary entirely; the raw sub-token still
		// carries it.
		return raw
	}
	return decoded
}

// displayTokens maps DisplayToken over a slice of ids.
func displayTokens(ctx context.Context, tok model.Tokenizer, ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, DisplayToken(ctx, tok, id))
	}
	return out
}

// displayStream maintains the externally visible token/id/text view for each
// inference step: what has already been shown, never including the step's own
// selection.
//
// In chat mode the view is the boundary-trimmed formatted prompt plus the
// tokens generated so far; system-turn tokens are dropped but user/assistant
// markers stay. In non-chat mode the view is simply the full model context.
type displayStream struct {
	tok  model.Tokenizer
	chat bool

	// contextIDs is the model's running context in both modes.
	contextIDs []int

	// Chat mode only: the formatted prompt sliced from the boundary onward,
	// and the generated suffix accumulated after each recorded step.
	promptTokens []string
	promptIDs    []int
	genTokens    []string
	genIDs       []int
}

// newDisplayStream builds the stream for a fresh request. fullIDs is the
// encoded (possibly chat-formatted) prompt; boundaryTokens is the token
// offset produced by the boundary resolver (0 in non-chat mode).
func newDisplayStream(ctx context.Context, tok model.Tokenizer, chat bool, fullIDs []int, boundaryTokens int) *displayStream {
	s := &displayStream{
		tok:        tok,
		chat:       chat,
		contextIDs: append([]int(nil), fullIDs...),
	}
	if chat {
		if boundaryTokens < 0 || boundaryTokens > len(fullIDs) {
			boundaryTokens = 0
		}
		s.promptIDs = append([]int(nil), fullIDs[boundaryTokens:]...)
		s.promptTokens = displayTokens(ctx, tok, s.promptIDs)
	}
	return s
}

// snapshot returns the current visible (tokens, ids, text) triple. The text
// is decoded with special tokens retained so turn markers stay visible.
func (s *displayStream) snapshot(ctx context.Context) ([]string, []int, string, error) {
	var ids []int
	var tokens []string

	if s.chat {
		ids = make([]int, 0, len(s.promptIDs)+len(s.genIDs))
		ids = append(ids, s.promptIDs...)
		ids = append(ids, s.genIDs...)
		tokens = make([]string, 0, len(s.promptTokens)+len(s.genTokens))
		tokens = append(tokens, s.promptTokens...)
		tokens = append(tokens, s.genTokens...)
	} else {
		ids = append([]int(nil), s.contextIDs...)
		tokens = displayTokens(ctx, s.tok, ids)
	}

	text, err := s.tok.Decode(ctx, ids)
	if err != nil {
		return nil, nil, "", err
	}
	return tokens, ids, text, nil
}

// commit appends a recorded selection to the generated suffix and to the
// model context. Called strictly after the step is recorded, so the next
// snapshot includes it and the current one did not.
func (s *displayStream) commit(id int, token string) {
	s.contextIDs = append(s.contextIDs, id)
	if s.chat {
		s.genIDs = append(s.genIDs, id)
		s.genTokens = append(s.genTokens, token)
	}
}
