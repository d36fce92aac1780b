// Package extract turns uploaded or on-disk documents into plain text.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/onedesk/internal/config"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// Extractor converts .txt and .pdf documents to text, enforcing the
// configured type and size limits.
type Extractor struct {
	allowed  map[string]bool
	maxBytes int64
}

// New creates an Extractor from the uploads config.
func New(cfg config.UploadsConfig) *Extractor {
	allowed := make(map[string]bool, len(cfg.AllowedFileTypes))
	for _, ext := range cfg.AllowedFileTypes {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	return &Extractor{allowed: allowed, maxBytes: cfg.MaxBytes()}
}

// Supported reports whether name has an allowed extension that can be read.
func (e *Extractor) Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return e.allowed[ext] && (ext == ".txt" || ext == ".pdf")
}

// MaxBytes returns the size limit.
func (e *Extractor) MaxBytes() int64 {
	return e.maxBytes
}

// CheckSize returns ERR_408_FILE_TOO_LARGE when size exceeds the limit.
func (e *Extractor) CheckSize(name string, size int64) error {
	if e.maxBytes > 0 && size > e.maxBytes {
		return oderrors.New(oderrors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s is %d bytes, limit is %d", name, size, e.maxBytes), nil).
			WithDetail("file", name)
	}
	return nil
}

// Extract returns the text of a document named name.
func (e *Extractor) Extract(name string, data []byte) (string, error) {
	if !e.Supported(name) {
		return "", oderrors.New(oderrors.ErrCodeUnsupportedFile,
			fmt.Sprintf("unsupported file type %q", filepath.Ext(name)), nil).
			WithDetail("file", name).
			WithSuggestion(fmt.Sprintf("upload one of: %s", strings.Join(e.allowedList(), ", ")))
	}
	if err := e.CheckSize(name, int64(len(data))); err != nil {
		return "", err
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err := pdfText(data)
		if err != nil {
			return "", oderrors.ValidationError(fmt.Sprintf("could not read PDF %s", name), err).
				WithDetail("file", name)
		}
		return text, nil
	default:
		return plainText(data), nil
	}
}

// ExtractFile reads and extracts a file from disk.
func (e *Extractor) ExtractFile(path string) (string, error) {
	name := filepath.Base(path)
	if !e.Supported(name) {
		return e.Extract(name, nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", oderrors.IOError(fmt.Sprintf("cannot read %s", path), err)
	}
	if err := e.CheckSize(name, info.Size()); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", oderrors.IOError(fmt.Sprintf("cannot read %s", path), err)
	}
	return e.Extract(name, data)
}

func (e *Extractor) allowedList() []string {
	out := make([]string, 0, len(e.allowed))
	for _, ext := range []string{".pdf", ".txt"} {
		if e.allowed[ext] {
			out = append(out, ext)
		}
	}
	return out
}

// plainText strips a UTF-8 BOM and replaces invalid sequences.
func plainText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
