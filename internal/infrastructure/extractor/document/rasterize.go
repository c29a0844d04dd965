package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultPdftoppmBinary = "pdftoppm"
	DefaultRasterDPI      = 300
)

// PdftoppmRasterizer renders PDF pages to PNG through poppler's pdftoppm.
type PdftoppmRasterizer struct {
	runner   Runner
	binary   string
	dpi      int
	maxPages int
	tempDir  string
}

func NewPdftoppmRasterizer(runner Runner, binary string, dpi, maxPages int, tempDir string) *PdftoppmRasterizer {
	if runner == nil {
		runner = ExecRunner{}
	}
	if strings.TrimSpace(binary) == "" {
		binary = DefaultPdftoppmBinary
	}
	if dpi <= 0 {
		dpi = DefaultRasterDPI
	}
	return &PdftoppmRasterizer{
		runner:   runner,
		binary:   binary,
		dpi:      dpi,
		maxPages: maxPages,
		tempDir:  tempDir,
	}
}

func (r *PdftoppmRasterizer) Rasterize(ctx context.Context, path string) ([]string, func(), error) {
	dir, err := os.MkdirTemp(r.tempDir, "analyzer-pages-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create page dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	prefix := filepath.Join(dir, "page")
	args := []string{"-r", strconv.Itoa(r.dpi), "-png"}
	if r.maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(r.maxPages))
	}
	args = append(args, path, prefix)

	if _, stderr, err := r.runner.Run(ctx, r.binary, args...); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w: %s", r.binary, err, strings.TrimSpace(truncate(string(stderr), 512)))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("list rendered pages: %w", err)
	}
	if len(matches) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("%s rendered no pages", r.binary)
	}
	sortPagesNumerically(matches, prefix)
	if r.maxPages > 0 && len(matches) > r.maxPages {
		matches = matches[:r.maxPages]
	}
	return matches, cleanup, nil
}

// sortPagesNumerically orders prefix-N.png by N so page 10 follows page 9.
func sortPagesNumerically(paths []string, prefix string) {
	pageNumber := func(p string) int {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(p, prefix+"-"), ".png"))
		if err != nil {
			return 0
		}
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return pageNumber(paths[i]) < pageNumber(paths[j])
	})
}
