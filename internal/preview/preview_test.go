package preview

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"TraceLens/internal/engine"
)

func sampleDistribution() engine.Distribution {
	return engine.Distribution{
		TopK: 3,
		Candidates: []engine.TokenCandidate{
			{Token: "4", TokenID: 17, Prob: 0.8, Logprob: -0.2231},
			{Token: "Ġ4", TokenID: 16, Prob: 0.15, Logprob: -1.8971},
			{Token: "2", TokenID: 13, Prob: 0.05, Logprob: -2.9957},
		},
	}
}

func rowCenter(i int) int {
	return marginY + titleRow + i*rowHeight + rowHeight/2
}

func barLength(img *image.RGBA, y int) int {
	n := 0
	for x := labelCol + marginX; x < img.Bounds().Max.X; x++ {
		if img.RGBAAt(x, y) == background {
			break
		}
		n++
	}
	return n
}

func TestRenderDistributionGeometry(t *testing.T) {
	img := RenderDistribution(sampleDistribution(), "test", Options{Width: 400, Height: 200})

	if got := img.Bounds().Dx(); got != 400 {
		t.Errorf("width = %d, want 400", got)
	}
	if got := img.Bounds().Dy(); got != 200 {
		t.Errorf("height = %d, want 200", got)
	}
}

func TestRenderDistributionBarsFollowProbs(t *testing.T) {
	img := RenderDistribution(sampleDistribution(), "test", Options{})

	b0 := barLength(img, rowCenter(0))
	b1 := barLength(img, rowCenter(1))
	b2 := barLength(img, rowCenter(2))

	if !(b0 > b1 && b1 > b2) {
		t.Fatalf("bar lengths = %d, %d, %d, want strictly decreasing with prob", b0, b1, b2)
	}
	if b2 == 0 {
		t.Error("smallest candidate should still draw a bar")
	}

	// Rank 0 is highlighted with a distinct color.
	if img.RGBAAt(labelCol+marginX, rowCenter(0)) != topColor {
		t.Error("rank-0 bar not highlighted")
	}
	if img.RGBAAt(labelCol+marginX, rowCenter(1)) != barColor {
		t.Error("rank-1 bar uses the wrong color")
	}
}

func TestRenderDistributionScales(t *testing.T) {
	img := RenderDistribution(sampleDistribution(), "test", Options{Width: 100, Height: 50, Scale: 3})
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 150 {
		t.Errorf("scaled bounds = %v", img.Bounds())
	}
}

func TestWritePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charts", "step0.png")

	step := engine.InferenceStep{
		Step:               0,
		OutputDistribution: sampleDistribution(),
		SelectedToken:      engine.SelectedToken{Token: "4", TokenID: 17, SelectionMethod: engine.SelectionGreedy},
	}
	if err := WritePNG(path, RenderStep(step)); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("output is not a decodable PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 480 {
		t.Errorf("decoded width = %d, want default 480", decoded.Bounds().Dx())
	}
}
