package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"

	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/privacy"
)

// Kind is the source format of an ingested file
type Kind string

const (
	KindText  Kind = "text"
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

var (
	// ErrUnsupportedFormat is returned for unknown extensions and for images,
	// whose text has to be extracted by an OCR tool first
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrFileTooLarge is returned for files over the configured limit
	ErrFileTooLarge = errors.New("file too large")
	// ErrUndecodable is returned when no known Japanese encoding fits
	ErrUndecodable = errors.New("could not decode file; check its encoding")
)

// DefaultMaxFileSize matches the upload limit of the review UI
const DefaultMaxFileSize = 10 * 1024 * 1024

const headerRule = "============================================================"

var kinds = map[string]Kind{
	".txt":  KindText,
	".text": KindText,
	".md":   KindText,
	".pdf":  KindPDF,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
}

// fallbackEncodings are tried in order after UTF-8. japanese.ShiftJIS is the
// Windows code page 932 variant, which covers plain Shift_JIS.
var fallbackEncodings = []encoding.Encoding{
	japanese.ShiftJIS,
	japanese.EUCJP,
	japanese.ISO2022JP,
}

// Redactor masks file names before they appear in headers, logs or errors
type Redactor interface {
	Redact(text string) privacy.Result
}

// Reader loads medical documents from disk
type Reader struct {
	maxSize  int64
	redactor Redactor
	logger   *logger.Logger
}

// NewReader creates a reader. maxSize <= 0 uses DefaultMaxFileSize.
func NewReader(maxSize int64, redactor Redactor, log *logger.Logger) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reader{maxSize: maxSize, redactor: redactor, logger: log.WithComponent("ingest")}
}

// ReadFile reads one file and returns its text with its kind
func (r *Reader) ReadFile(path string) (string, Kind, error) {
	kind, ok := kinds[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", "", fmt.Errorf("%w: %s (supported: .txt, .text, .md, .pdf)", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if kind == KindImage {
		return "", kind, fmt.Errorf("%w: %s text must be extracted before ingestion", ErrUnsupportedFormat, kind)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", kind, err
	}
	if info.Size() > r.maxSize {
		return "", kind, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, info.Size(), r.maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", kind, err
	}

	var text string
	if kind == KindPDF {
		text, err = ExtractPDF(data)
	} else {
		text, err = Decode(data)
	}
	if err != nil {
		return "", kind, err
	}
	return text, kind, nil
}

// ReadAll reads a document from a stream such as stdin
func (r *Reader) ReadAll(src io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(src, r.maxSize+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > r.maxSize {
		return "", fmt.Errorf("%w: input exceeds %d bytes", ErrFileTooLarge, r.maxSize)
	}
	return Decode(data)
}

// ReadFiles reads several files into one document, each under a header that
// names the file. File names are redacted wherever they are shown. Files that
// fail are skipped with a warning; an error is returned only if all fail.
func (r *Reader) ReadFiles(paths []string) (string, error) {
	blocks := make([]string, 0, len(paths))
	var failures []error

	for _, path := range paths {
		name := r.maskName(filepath.Base(path))

		content, kind, err := r.ReadFile(path)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", name, stripPath(err)))
			continue
		}

		blocks = append(blocks, fmt.Sprintf("%s\nファイル: %s (種別: %s)\n%s\n%s\n",
			headerRule, name, kind, headerRule, content))
	}

	if len(failures) > 0 {
		if len(blocks) == 0 {
			return "", fmt.Errorf("failed to read all files: %w", errors.Join(failures...))
		}
		for _, failure := range failures {
			r.logger.Warn("Skipping unreadable file", zap.Error(failure))
		}
	}

	return strings.Join(blocks, "\n\n"), nil
}

func (r *Reader) maskName(name string) string {
	if r.redactor == nil {
		return name
	}
	return r.redactor.Redact(name).Text
}

// stripPath drops the file path from os errors; the path may itself carry
// identifying information.
func stripPath(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}

// Decode converts raw bytes to text, trying UTF-8 first and then the legacy
// Japanese encodings.
func Decode(data []byte) (string, error) {
	// ISO-2022-JP is 7-bit and would pass as UTF-8 with raw escapes left in
	if bytes.Contains(data, []byte("\x1b$B")) || bytes.Contains(data, []byte("\x1b$@")) {
		if decoded, err := japanese.ISO2022JP.NewDecoder().Bytes(data); err == nil {
			return string(decoded), nil
		}
	}

	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}

	for _, enc := range fallbackEncodings {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		// the x/text decoders substitute U+FFFD for invalid input
		if !strings.ContainsRune(string(decoded), utf8.RuneError) {
			return string(decoded), nil
		}
	}

	return "", ErrUndecodable
}
