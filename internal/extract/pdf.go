package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigOnce sync.Once

var pageFilePattern = regexp.MustCompile(`Content_page_(\d+)`)

// pdfText extracts the page content streams with pdfcpu and collects the
// strings shown by text operators, one page after another.
func pdfText(data []byte) (string, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF")) {
		return "", fmt.Errorf("missing PDF header")
	}
	disableConfigOnce.Do(api.DisableConfigDir)

	dir, err := os.MkdirTemp("", "onedesk-pdf-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	inFile := filepath.Join(dir, "upload.pdf")
	if err := os.WriteFile(inFile, data, 0600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	outDir := filepath.Join(dir, "pages")
	if err := os.Mkdir(outDir, 0700); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(inFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", err
	}
	type page struct {
		n    int
		text string
	}
	var pages []page
	for _, entry := range entries {
		m := pageFilePattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			return "", err
		}
		pages = append(pages, page{n: n, text: streamText(string(content))})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		if t := strings.TrimSpace(p.text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}
