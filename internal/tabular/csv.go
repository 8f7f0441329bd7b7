package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"imdata/internal/fileutil"
)

// ReadOptions controls CSV decoding.
type ReadOptions struct {
	// Encoding names the source character set: "" or "utf-8", "iso-8859-1"
	// (alias "latin1"), or "windows-1252".
	Encoding string
	// SkipLines drops this many physical lines before the header row.
	SkipLines int
}

// Decoder returns the decoder for a named source encoding, or nil for UTF-8.
func Decoder(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// ReadCSV parses a headed CSV stream into a frame.
func ReadCSV(r io.Reader, opts ReadOptions) (*Frame, error) {
	dec, err := Decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	if dec != nil {
		r = transform.NewReader(r, dec)
	}
	br := bufio.NewReader(r)
	for skipped := 0; skipped < opts.SkipLines; skipped++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return New(), nil
			}
			return nil, fmt.Errorf("skip line %d: %w", skipped+1, err)
		}
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	frame := New(header...)

	for line := 2 + opts.SkipLines; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record near line %d: %w", line, err)
		}
		if len(record) > len(frame.columns) {
			record = record[:len(frame.columns)]
		}
		_ = frame.Append(record...)
	}
	return frame, nil
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string, opts ReadOptions) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	frame, err := ReadCSV(file, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return frame, nil
}

// WriteCSV writes the frame as UTF-8 CSV with every field quoted.
func WriteCSV(w io.Writer, f *Frame) error {
	bw := bufio.NewWriter(w)
	if err := writeQuotedRecord(bw, f.columns); err != nil {
		return err
	}
	for _, row := range f.rows {
		if err := writeQuotedRecord(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// AppendCSVFile appends the frame's rows to path, writing the header only
// when the file does not exist yet.
func AppendCSVFile(path string, f *Frame) error {
	exists := fileutil.Exists(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(file)
	if !exists {
		if err := writeQuotedRecord(bw, f.columns); err != nil {
			_ = file.Close()
			return err
		}
	}
	for _, row := range f.rows {
		if err := writeQuotedRecord(bw, row); err != nil {
			_ = file.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// WriteCSVFile atomically replaces path with the frame as quote-all CSV.
func WriteCSVFile(path string, f *Frame) error {
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		return WriteCSV(w, f)
	})
}

func writeQuotedRecord(w *bufio.Writer, fields []string) error {
	for i, field := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := w.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}
