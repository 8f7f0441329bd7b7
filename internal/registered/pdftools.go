package registered

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"imdata/internal/deps"
	"imdata/internal/fileutil"
)

const (
	ocrmypdfCommand  = "ocrmypdf"
	pdftotextCommand = "pdftotext"
	pdfimagesCommand = "pdfimages"

	jpegQuality = 90
)

// ErrToolMissing reports that an optional PDF tool is not installed.
var ErrToolMissing = errors.New("tool not installed")

// CommandRunner runs an external command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Tools wraps the PDF command-line toolchain.
type Tools struct {
	run      CommandRunner
	lookPath func(string) (string, error)
}

// NewTools returns a toolchain that executes binaries found on PATH.
func NewTools() *Tools {
	return &Tools{run: runCommand, lookPath: exec.LookPath}
}

// Requirements lists the binaries the pipeline uses.
func Requirements() []deps.Requirement {
	return []deps.Requirement{
		{Name: "OCRmyPDF", Command: ocrmypdfCommand, Description: "Adds a text layer to scanned register PDFs", Optional: true},
		{Name: "pdftotext", Command: pdftotextCommand, Description: "Extracts PDF text for the Markdown OCR block"},
		{Name: "pdfimages", Command: pdfimagesCommand, Description: "Extracts embedded images", Optional: true},
	}
}

func (t *Tools) has(name string) bool {
	_, err := t.lookPath(name)
	return err == nil
}

// OCR writes a searchable copy of in to out. Pages that already carry text
// are left alone.
func (t *Tools) OCR(ctx context.Context, in, out string) error {
	if !t.has(ocrmypdfCommand) {
		return fmt.Errorf("%s: %w", ocrmypdfCommand, ErrToolMissing)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if _, err := t.run(ctx, ocrmypdfCommand, "--deskew", "--clean", "--optimize", "3", "--skip-text", in, out); err != nil {
		return err
	}
	if !fileutil.Exists(out) {
		return fmt.Errorf("%s produced no output", ocrmypdfCommand)
	}
	return nil
}

// Text returns the trimmed text layer of pdf.
func (t *Tools) Text(ctx context.Context, pdf string) (string, error) {
	if !t.has(pdftotextCommand) {
		return "", fmt.Errorf("%s: %w", pdftotextCommand, ErrToolMissing)
	}
	out, err := t.run(ctx, pdftotextCommand, "-layout", "-enc", "UTF-8", pdf, "-")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Images extracts the embedded images of pdf into dir as 0001.jpg,
// 0002.jpg, ... Images that cannot be decoded are skipped.
func (t *Tools) Images(ctx context.Context, pdf, dir string) (int, error) {
	if !t.has(pdfimagesCommand) {
		return 0, fmt.Errorf("%s: %w", pdfimagesCommand, ErrToolMissing)
	}
	tmp, err := os.MkdirTemp("", "imdata-pdfimages-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmp)

	if _, err := t.run(ctx, pdfimagesCommand, "-png", pdf, filepath.Join(tmp, "img")); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	saved := 0
	for _, name := range names {
		img, err := decodeImage(filepath.Join(tmp, name))
		if err != nil {
			continue
		}
		dest := filepath.Join(dir, fmt.Sprintf("%04d.jpg", saved+1))
		if err := fileutil.WriteAtomic(dest, func(w io.Writer) error { return encodeJPEG(w, img) }); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

func decodeImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// encodeJPEG flattens transparency onto white and writes a JPEG.
func encodeJPEG(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)
	return jpeg.Encode(w, flat, &jpeg.Options{Quality: jpegQuality})
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
