package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"TraceLens/internal/engine"
)

// Options controls chart geometry. The zero value renders at 480x240.
type Options struct {
	Width  int
	Height int

	// Scale upsamples the finished chart by an integer factor for
	// high-density displays.
	Scale int
}

func (o Options) normalized() Options {
	if o.Width <= 0 {
		o.Width = 480
	}
	if o.Height <= 0 {
		o.Height = 240
	}
	if o.Scale <= 0 {
		o.Scale = 1
	}
	return o
}

// Chart layout constants. Labels occupy the left column, bars the rest.
const (
	marginX   = 8
	marginY   = 8
	rowHeight = 18
	labelCol  = 150
	titleRow  = 20
)

var (
	background = color.RGBA{24, 24, 32, 255}
	barColor   = color.RGBA{97, 175, 239, 255}
	topColor   = color.RGBA{152, 195, 121, 255}
	textColor  = color.RGBA{220, 223, 228, 255}
)

// RenderDistribution draws a horizontal bar chart of a recorded top-K
// distribution. The rank-0 candidate is highlighted.
func RenderDistribution(d engine.Distribution, title string, opts Options) *image.RGBA {
	opts = opts.normalized()

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	fill(img, background)

	drawString(img, marginX, marginY+13, title)

	barArea := opts.Width - labelCol - 2*marginX
	y := marginY + titleRow
	for i, c := range d.Candidates {
		if y+rowHeight > opts.Height-marginY {
			break
		}

		label := fmt.Sprintf("%-12q %.4f", c.Token, c.Prob)
		drawString(img, marginX, y+13, label)

		width := int(c.Prob * float64(barArea))
		col := barColor
		if i == 0 {
			col = topColor
		}
		for dy := 2; dy < rowHeight-4; dy++ {
			for dx := 0; dx < width; dx++ {
				img.Set(labelCol+marginX+dx, y+dy, col)
			}
		}
		y += rowHeight
	}

	if opts.Scale > 1 {
		scaled := image.NewRGBA(image.Rect(0, 0, opts.Width*opts.Scale, opts.Height*opts.Scale))
		xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		return scaled
	}
	return img
}

// RenderStep charts one inference step, titling the chart with the step
// number and the committed selection.
func RenderStep(step engine.InferenceStep) *image.RGBA {
	title := fmt.Sprintf("step %d  selected %q (%s)", step.Step, step.SelectedToken.Token, step.SelectedToken.SelectionMethod)
	return RenderDistribution(step.OutputDistribution, title, Options{})
}

// WritePNG encodes the chart to path, creating parent directories as needed.
func WritePNG(path string, img image.Image) error {
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create preview directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create preview file %q: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	return nil
}

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func drawString(img *image.RGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
