// Package chart renders the reply statistics as a pie chart PNG served from
// the bot's static directory.
package chart

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// FileName is the chart file inside the static directory.
const FileName = "statistic.png"

const (
	width  = 640
	height = 480
)

var (
	emptyColor = drawing.ColorFromHex("cccccc")

	// Palette colours slices in label order.
	Palette = []drawing.Color{
		drawing.ColorFromHex("1f77b4"),
		drawing.ColorFromHex("ff7f0e"),
		drawing.ColorFromHex("2ca02c"),
	}
)

// Slice is one labelled value of the pie.
type Slice struct {
	Label string
	Value int
}

// Draw writes slices to w as a PNG pie chart, each slice labelled with its
// name and percentage. Zero-valued slices are omitted; when every value is
// zero a single grey "no data" disc is drawn.
func Draw(w io.Writer, slices []Slice) error {
	total := 0
	for _, s := range slices {
		total += s.Value
	}

	pie := gochart.PieChart{Width: width, Height: height}
	if total == 0 {
		pie.Values = []gochart.Value{{
			Label: "no data",
			Value: 1,
			Style: gochart.Style{FillColor: emptyColor},
		}}
	}
	for i, s := range slices {
		if s.Value == 0 {
			continue
		}
		share := float64(s.Value) / float64(total) * 100
		pie.Values = append(pie.Values, gochart.Value{
			Label: fmt.Sprintf("%s %.1f%%", s.Label, share),
			Value: float64(s.Value),
			Style: gochart.Style{FillColor: Palette[i%len(Palette)]},
		})
	}
	if err := pie.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// Renderer writes the chart into a static directory and returns its public
// URL. Renders are serialised and each file is replaced atomically, so a
// reader never sees a partial image.
type Renderer struct {
	dir     string
	baseURL string
	mu      sync.Mutex
}

// NewRenderer creates a Renderer writing to dir, served under
// {baseURL}/static/.
func NewRenderer(dir, baseURL string) *Renderer {
	return &Renderer{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// URL is the public address of the rendered chart.
func (r *Renderer) URL() string {
	return r.baseURL + "/static/" + FileName
}

// Render draws the overlap, noOverlap and notReplied counts and returns URL().
func (r *Renderer) Render(ctx context.Context, overlap, noOverlap, notReplied int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	slices := []Slice{
		{Label: "overlap", Value: overlap},
		{Label: "noOverlap", Value: noOverlap},
		{Label: "notReplied", Value: notReplied},
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create static dir: %w", err)
	}
	tmp, err := os.CreateTemp(r.dir, ".statistic-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create chart file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Draw(tmp, slices); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write chart: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write chart: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(r.dir, FileName)); err != nil {
		return "", fmt.Errorf("failed to publish chart: %w", err)
	}
	return r.URL(), nil
}
