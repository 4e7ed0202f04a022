package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"TraceLens/internal/model"
)

// fakeVocab is a tiny byte-level-style vocabulary for engine tests. Entries
// are raw sub-tokens; "Ġ" marks a leading space.
var fakeVocab = []string{
	"<|begin_of_text|>",   // 0, BOS
	"<|eot|>",             // 1, EOS
	"<|start_header_id|>", // 2
	"<|end_header_id|>",   // 3
	"system",              // 4
	"user",                // 5
	"assistant",           // 6
	"\n\n",                // 7
	"\n",                  // 8
	"You",                 // 9
	"Ġare",                // 10
	"Ġhelpful",            // 11
	".",                   // 12
	"2",                   // 13
	"+",                   // 14
	"=",                   // 15
	"Ġ4",                  // 16
	"4",                   // 17
	"A",                   // 18
	"B",                   // 19
	"Hello",               // 20
	"Ġworld",              // 21
}

const (
	fakeBOS = 0
	fakeEOS = 1
)

// surface converts a raw sub-token to the text it decodes to.
func surface(raw string) string {
	if strings.HasPrefix(raw, "Ġ") {
		return " " + strings.TrimPrefix(raw, "Ġ")
	}
	return raw
}

// fakeTokenizer greedily matches the longest vocabulary surface at each
// position. Unknown runes are skipped, which the tests never rely on.
type fakeTokenizer struct {
	chatTemplate bool

	// failDecode makes single-id Decode calls fail for these ids, to
	// exercise the raw-subtoken fallback.
	failDecode map[int]bool
}

func (f *fakeTokenizer) Encode(_ context.Context, text string, addSpecialTokens bool) ([]int, error) {
	var ids []int
	if addSpecialTokens {
		ids = append(ids, fakeBOS)
	}
	for len(text) > 0 {
		best, bestLen := -1, 0
		for id, raw := range fakeVocab {
			s := surface(raw)
			if len(s) > bestLen && strings.HasPrefix(text, s) {
				best, bestLen = id, len(s)
			}
		}
		if best == -1 {
			_, size := utf8.DecodeRuneInString(text)
			text = text[size:]
			continue
		}
		ids = append(ids, best)
		text = text[bestLen:]
	}
	return ids, nil
}

func (f *fakeTokenizer) Decode(_ context.Context, ids []int) (string, error) {
	if len(ids) == 1 && f.failDecode[ids[0]] {
		return "", fmt.Errorf("fake decode failure for id %d", ids[0])
	}
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(fakeVocab) {
			return "", fmt.Errorf("id %d out of vocab", id)
		}
		b.WriteString(surface(fakeVocab[id]))
	}
	return b.String(), nil
}

func (f *fakeTokenizer) RawSubtoken(_ context.Context, id int) (string, error) {
	if id < 0 || id >= len(fakeVocab) {
		return "", fmt.Errorf("id %d out of vocab", id)
	}
	return fakeVocab[id], nil
}

func (f *fakeTokenizer) RenderChat(_ context.Context, messages []model.ChatMessage, addGenerationPrompt bool) (string, error) {
	var b strings.Builder
	b.WriteString("<|begin_of_text|>")
	b.WriteString("<|start_header_id|>system<|end_header_id|>\n\nYou are helpful.<|eot|>")
	for _, m := range messages {
		b.WriteString("<|start_header_id|>" + m.Role + "<|end_header_id|>\n\n")
		b.WriteString(m.Content)
		b.WriteString("<|eot|>")
	}
	if addGenerationPrompt {
		b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	}
	return b.String(), nil
}

func (f *fakeTokenizer) HasChatTemplate() bool { return f.chatTemplate }

func (f *fakeTokenizer) EOSTokenID() int { return fakeEOS }

// fakeBackend produces deterministic logits from injected functions.
type fakeBackend struct {
	next func(ids []int) ([]float64, error)
	seq  func(ids []int) ([][]float64, error)
}

func (f *fakeBackend) NextLogits(_ context.Context, ids []int) ([]float64, error) {
	return f.next(ids)
}

func (f *fakeBackend) SequenceLogits(_ context.Context, ids []int) ([][]float64, error) {
	return f.seq(ids)
}

func (f *fakeBackend) Close() error { return nil }

// peakedLogits builds a full-vocab logit vector peaked at the given id, with
// strictly decreasing logits for the following ids so top-K order is exact.
func peakedLogits(peak int) []float64 {
	logits := make([]float64, len(fakeVocab))
	for i := range logits {
		logits[i] = -10
	}
	logits[peak] = 8
	for rank, id := 1, peak+1; rank < 5; rank, id = rank+1, id+1 {
		logits[(id)%len(fakeVocab)] = 8 - float64(rank)
	}
	return logits
}

func fakeSession(chatTemplate bool, backend *fakeBackend) *model.Session {
	return &model.Session{
		Tokenizer: &fakeTokenizer{chatTemplate: chatTemplate},
		Backend:   backend,
		Info: model.Info{
			Name:              "fake-lm",
			NumLayers:         2,
			HiddenSize:        8,
			NumAttentionHeads: 2,
			VocabSize:         len(fakeVocab),
		},
	}
}
