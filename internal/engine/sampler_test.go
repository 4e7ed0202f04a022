package engine

import (
	"context"
	"math/rand"
	"testing"
)

func TestSelectTokenGreedy(t *testing.T) {
	ctx := context.Background()
	ext := extractTopK(ctx, &fakeTokenizer{}, peakedLogits(17), 5)

	for _, temperature := range []float64{0, -1} {
		id, method := selectToken(ext, temperature, rand.New(rand.NewSource(1)))
		if id != ext.ids[0] {
			t.Errorf("temperature %v: selected %d, want rank-0 id %d", temperature, id, ext.ids[0])
		}
		if method != SelectionGreedy {
			t.Errorf("temperature %v: method = %q, want greedy", temperature, method)
		}
	}
}

func TestSelectTokenSamplingStaysInTopK(t *testing.T) {
	ctx := context.Background()
	ext := extractTopK(ctx, &fakeTokenizer{}, peakedLogits(4), 5)

	members := make(map[int]bool, len(ext.ids))
	for _, id := range ext.ids {
		members[id] = true
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		id, method := selectToken(ext, 1.3, rng)
		if !members[id] {
			t.Fatalf("draw %d: sampled id %d outside top-k %v", i, id, ext.ids)
		}
		if method != SelectionSampling {
			t.Fatalf("draw %d: method = %q, want sampling", i, method)
		}
	}
}

func TestSelectTokenHighTemperatureSpreads(t *testing.T) {
	ctx := context.Background()
	ext := extractTopK(ctx, &fakeTokenizer{}, peakedLogits(9), 5)

	rng := rand.New(rand.NewSource(7))
	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		id, _ := selectToken(ext, 100, rng)
		seen[id] = true
	}
	// At near-uniform temperature all five candidates should show up.
	if len(seen) != len(ext.ids) {
		t.Fatalf("saw %d distinct ids at temperature 100, want %d", len(seen), len(ext.ids))
	}
}

func TestSelectTokenDoesNotMutateDistribution(t *testing.T) {
	ctx := context.Background()
	ext := extractTopK(ctx, &fakeTokenizer{}, peakedLogits(13), 5)

	before := make([]TokenCandidate, len(ext.dist.Candidates))
	copy(before, ext.dist.Candidates)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		selectToken(ext, 0.5, rng)
	}

	for i := range before {
		if before[i] != ext.dist.Candidates[i] {
			t.Fatalf("candidate %d changed after sampling: %+v -> %+v", i, before[i], ext.dist.Candidates[i])
		}
	}
}
