package ingest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/privacy"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func newReader(t *testing.T, maxSize int64) *Reader {
	t.Helper()
	d, err := privacy.New(config.PrivacyConfig{Enabled: true, Detectors: []string{"all"}}, logger.Nop())
	require.NoError(t, err)
	return NewReader(maxSize, d, logger.Nop())
}

func TestDecode(t *testing.T) {
	const text = "診断名：統合失調症"

	t.Run("UTF8", func(t *testing.T) {
		got, err := Decode([]byte(text))
		require.NoError(t, err)
		assert.Equal(t, text, got)
	})

	t.Run("UTF8WithBOM", func(t *testing.T) {
		got, err := Decode(append([]byte{0xEF, 0xBB, 0xBF}, text...))
		require.NoError(t, err)
		assert.Equal(t, text, got)
	})

	t.Run("ShiftJIS", func(t *testing.T) {
		encoded, err := japanese.ShiftJIS.NewEncoder().String(text)
		require.NoError(t, err)

		got, err := Decode([]byte(encoded))
		require.NoError(t, err)
		assert.Equal(t, text, got)
	})

	t.Run("ISO2022JP", func(t *testing.T) {
		encoded, err := japanese.ISO2022JP.NewEncoder().String(text)
		require.NoError(t, err)

		got, err := Decode([]byte(encoded))
		require.NoError(t, err)
		assert.Equal(t, text, got)
	})
}

func TestReader_ReadFile(t *testing.T) {
	dir := t.TempDir()
	r := newReader(t, 64)

	t.Run("Text", func(t *testing.T) {
		path := writeFile(t, dir, "note.txt", []byte("幻聴あり"))
		content, kind, err := r.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "幻聴あり", content)
		assert.Equal(t, KindText, kind)
	})

	t.Run("Markdown", func(t *testing.T) {
		path := writeFile(t, dir, "note.MD", []byte("# 経過"))
		_, kind, err := r.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, KindText, kind)
	})

	t.Run("ImageNeedsOCR", func(t *testing.T) {
		path := writeFile(t, dir, "scan.png", []byte("\x89PNG"))
		_, kind, err := r.ReadFile(path)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.Equal(t, KindImage, kind)
	})

	t.Run("UnknownExtension", func(t *testing.T) {
		path := writeFile(t, dir, "data.docx", []byte("x"))
		_, _, err := r.ReadFile(path)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("TooLarge", func(t *testing.T) {
		path := writeFile(t, dir, "big.txt", []byte(strings.Repeat("a", 65)))
		_, _, err := r.ReadFile(path)
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})
}

func TestReader_ReadAll(t *testing.T) {
	r := newReader(t, 8)

	got, err := r.ReadAll(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = r.ReadAll(strings.NewReader("123456789"))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestReader_ReadFiles(t *testing.T) {
	dir := t.TempDir()
	r := newReader(t, 0)

	first := writeFile(t, dir, "紹介状_03-1234-5678.txt", []byte("初診時より幻聴あり"))
	second := writeFile(t, dir, "経過.txt", []byte("服薬継続中"))

	t.Run("ConcatenatesWithMaskedHeaders", func(t *testing.T) {
		doc, err := r.ReadFiles([]string{first, second})
		require.NoError(t, err)

		assert.Contains(t, doc, "ファイル: 紹介状_[電話番号].txt (種別: text)")
		assert.Contains(t, doc, "ファイル: 経過.txt (種別: text)")
		assert.NotContains(t, doc, "03-1234-5678")
		assert.Less(t, strings.Index(doc, "初診時"), strings.Index(doc, "服薬継続中"))
		assert.True(t, strings.HasPrefix(doc, headerRule+"\n"))
	})

	t.Run("PartialFailure", func(t *testing.T) {
		missing := filepath.Join(dir, "欠落.txt")
		doc, err := r.ReadFiles([]string{missing, second})
		require.NoError(t, err)
		assert.Contains(t, doc, "服薬継続中")
	})

	t.Run("AllFail", func(t *testing.T) {
		missing := filepath.Join(dir, "090-1111-2222.txt")
		_, err := r.ReadFiles([]string{missing})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "[電話番号].txt")
		assert.NotContains(t, err.Error(), "090-1111-2222")
	})
}

// buildPDF writes a minimal PDF with one Helvetica text line per page; an
// empty string gives a page without content.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	object := func(body string) int {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
		return len(offsets)
	}

	buf.WriteString("%PDF-1.4\n")
	object("<< /Type /Catalog /Pages 2 0 R >>")

	// page objects follow the font at 3; each text page is followed by its stream
	var kids []string
	next := 4
	for _, text := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", next))
		next++
		if text != "" {
			next++
		}
	}
	object(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	object("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for _, text := range pages {
		page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << /Font << /F1 3 0 R >> >>"
		if text == "" {
			object(page + " >>")
			continue
		}
		id := len(offsets) + 1
		object(fmt.Sprintf("%s /Contents %d 0 R >>", page, id+1))
		content := fmt.Sprintf("BT /F1 12 Tf 72 760 Td (%s) Tj ET", text)
		object(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestExtractPDF(t *testing.T) {
	t.Run("PagesWithHeaders", func(t *testing.T) {
		text, err := ExtractPDF(buildPDF("TEL 03-1234-5678", "", "Patient ID 12345"))
		require.NoError(t, err)
		assert.Equal(t, "--- Page 1 ---\nTEL 03-1234-5678\n\n--- Page 3 ---\nPatient ID 12345", text)
	})

	t.Run("NoTextLayer", func(t *testing.T) {
		text, err := ExtractPDF(buildPDF(""))
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("NotAPDF", func(t *testing.T) {
		_, err := ExtractPDF([]byte("%PDF-1.4\nnot really"))
		assert.ErrorIs(t, err, ErrPDFExtraction)
	})
}

func TestReader_ReadPDF(t *testing.T) {
	dir := t.TempDir()
	r := newReader(t, 0)
	path := writeFile(t, dir, "紹介状.pdf", buildPDF("Referral", "TEL 090-1111-2222"))

	content, kind, err := r.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, KindPDF, kind)
	assert.Equal(t, "--- Page 1 ---\nReferral\n\n--- Page 2 ---\nTEL 090-1111-2222", content)

	doc, err := r.ReadFiles([]string{path})
	require.NoError(t, err)
	assert.Contains(t, doc, "ファイル: 紹介状.pdf (種別: pdf)")
	assert.Contains(t, doc, "--- Page 2 ---")
}
