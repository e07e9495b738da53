package chart_test

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chart"
)

// colours decodes a PNG and returns the set of opaque colours it uses.
func colours(t *testing.T, data []byte) map[color.RGBA]bool {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode chart: %v", err)
	}
	seen := map[color.RGBA]bool{}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a == 0xffff {
				seen[color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 0xff}] = true
			}
		}
	}
	return seen
}

func rgba(c drawing.Color) color.RGBA {
	return color.RGBA{c.R, c.G, c.B, 0xff}
}

func TestDraw_OmitsZeroSlices(t *testing.T) {
	var buf bytes.Buffer
	err := chart.Draw(&buf, []chart.Slice{
		{Label: "overlap", Value: 3},
		{Label: "noOverlap", Value: 0},
		{Label: "notReplied", Value: 1},
	})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	seen := colours(t, buf.Bytes())
	if !seen[rgba(chart.Palette[0])] || !seen[rgba(chart.Palette[2])] {
		t.Error("non-zero slices missing from chart")
	}
	if seen[rgba(chart.Palette[1])] {
		t.Error("zero slice drawn")
	}
}

func TestDraw_AllZero(t *testing.T) {
	var buf bytes.Buffer
	err := chart.Draw(&buf, []chart.Slice{
		{Label: "overlap", Value: 0},
		{Label: "noOverlap", Value: 0},
		{Label: "notReplied", Value: 0},
	})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	seen := colours(t, buf.Bytes())
	if !seen[color.RGBA{0xcc, 0xcc, 0xcc, 0xff}] {
		t.Error("empty chart lacks the grey disc")
	}
	for i, c := range chart.Palette {
		if seen[rgba(c)] {
			t.Errorf("empty chart uses palette colour %d", i)
		}
	}
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	r := chart.NewRenderer(dir, "https://bot.example/")

	url, err := r.Render(context.Background(), 2, 1, 1)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if url != "https://bot.example/static/statistic.png" {
		t.Errorf("url = %q", url)
	}

	f, err := os.Open(filepath.Join(dir, chart.FileName))
	if err != nil {
		t.Fatalf("open chart: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode chart: %v", err)
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 480 {
		t.Errorf("size = %v", img.Bounds())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestRender_Concurrent(t *testing.T) {
	dir := t.TempDir()
	r := chart.NewRenderer(dir, "http://localhost")

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Render(context.Background(), i, 8-i, 1); err != nil {
				t.Errorf("Render: %v", err)
			}
		}()
	}
	wg.Wait()

	f, err := os.Open(filepath.Join(dir, chart.FileName))
	if err != nil {
		t.Fatalf("open chart: %v", err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Fatalf("chart corrupted by concurrent renders: %v", err)
	}
}
