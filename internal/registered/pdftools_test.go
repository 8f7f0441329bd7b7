package registered

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"imdata/internal/testsupport"
)

func TestToolsReportMissingBinaries(t *testing.T) {
	tools := &Tools{
		run: func(context.Context, string, ...string) ([]byte, error) {
			t.Fatal("runner must not be called")
			return nil, nil
		},
		lookPath: func(name string) (string, error) { return "", errors.New("not found") },
	}
	ctx := context.Background()
	if err := tools.OCR(ctx, "in.pdf", "out.pdf"); !errors.Is(err, ErrToolMissing) {
		t.Fatalf("OCR error = %v", err)
	}
	if _, err := tools.Text(ctx, "in.pdf"); !errors.Is(err, ErrToolMissing) {
		t.Fatalf("Text error = %v", err)
	}
	if _, err := tools.Images(ctx, "in.pdf", t.TempDir()); !errors.Is(err, ErrToolMissing) {
		t.Fatalf("Images error = %v", err)
	}
}

func TestToolsOCRArguments(t *testing.T) {
	out := filepath.Join(t.TempDir(), "rb-1", "rb-1-readable.pdf")
	var got []string
	tools := &Tools{
		run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			got = append([]string{name}, args...)
			return nil, os.WriteFile(out, []byte("%PDF"), 0o644)
		},
		lookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil },
	}
	if err := tools.OCR(context.Background(), "in.pdf", out); err != nil {
		t.Fatalf("OCR: %v", err)
	}
	want := []string{"ocrmypdf", "--deskew", "--clean", "--optimize", "3", "--skip-text", "in.pdf", out}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ocrmypdf args mismatch (-want +got):\n%s", diff)
	}
}

func TestToolsImagesReencodesAsJPEG(t *testing.T) {
	tools := &Tools{
		run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			prefix := args[len(args)-1]
			img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
			img.Set(1, 1, color.NRGBA{R: 200, A: 128})
			f, err := os.Create(prefix + "-000.png")
			if err != nil {
				return nil, err
			}
			defer f.Close()
			if err := png.Encode(f, img); err != nil {
				return nil, err
			}
			return nil, os.WriteFile(prefix+"-001.png", []byte("not a png"), 0o644)
		},
		lookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil },
	}
	dir := filepath.Join(t.TempDir(), "images")
	n, err := tools.Images(context.Background(), "in.pdf", dir)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 image, got %d", n)
	}
	f, err := os.Open(filepath.Join(dir, "0001.jpg"))
	if err != nil {
		t.Fatalf("open jpeg: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Fatalf("unexpected bounds %v", b)
	}
}

func TestToolsTextRunsPdftotext(t *testing.T) {
	testsupport.NewConfig(t, testsupport.WithStubbedBinaries(`echo "  REGISTERED BUILDING  "`, "pdftotext"))

	text, err := NewTools().Text(context.Background(), "in.pdf")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "REGISTERED BUILDING" {
		t.Fatalf("Text = %q", text)
	}
}
