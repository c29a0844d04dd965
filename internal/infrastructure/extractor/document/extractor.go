package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
	"github.com/kirillkom/content-analyzer/internal/core/ports"
	"github.com/kirillkom/content-analyzer/internal/mediatype"
)

const DefaultMinTextLayerChars = 5

// PDFTextReader reads the embedded text layer of a PDF, one entry per page.
type PDFTextReader interface {
	ReadPages(ctx context.Context, path string) ([]string, error)
}

// Rasterizer renders every PDF page to an image file. Paths are returned in page order;
// cleanup removes whatever was rendered.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string) (pages []string, cleanup func(), err error)
}

// OCREngine recognizes text in a single image file.
type OCREngine interface {
	Name() string
	Recognize(ctx context.Context, imagePath string) (string, error)
}

type Config struct {
	MinTextLayerChars int
	TempDir           string
}

type Extractor struct {
	storage    ports.ObjectStorage
	pdfText    PDFTextReader
	rasterizer Rasterizer
	ocr        OCREngine
	cfg        Config
	logger     *slog.Logger
}

func NewExtractor(
	storage ports.ObjectStorage,
	pdfText PDFTextReader,
	rasterizer Rasterizer,
	ocr OCREngine,
	cfg Config,
	logger *slog.Logger,
) *Extractor {
	if cfg.MinTextLayerChars <= 0 {
		cfg.MinTextLayerChars = DefaultMinTextLayerChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		storage:    storage,
		pdfText:    pdfText,
		rasterizer: rasterizer,
		ocr:        ocr,
		cfg:        cfg,
		logger:     logger,
	}
}

func (e *Extractor) Extract(ctx context.Context, source domain.Source) (domain.Extraction, error) {
	kind, err := mediatype.Classify(source.MimeType, source.Filename)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "classify source", err)
	}

	path, cleanup, err := e.materialize(ctx, source)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "materialize source", err)
	}
	defer cleanup()

	start := time.Now()
	var out domain.Extraction
	switch kind {
	case mediatype.KindPDF:
		out, err = e.extractPDF(ctx, path)
	default:
		out, err = e.extractImage(ctx, path)
	}
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "extract "+string(kind), err)
	}

	out.Text = strings.TrimSpace(out.Text)
	e.logger.Debug("text_extracted",
		"storage_key", source.StorageKey,
		"method", out.Method,
		"pages", out.Pages,
		"chars", utf8.RuneCountInString(out.Text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (domain.Extraction, error) {
	pages, err := e.pdfText.ReadPages(ctx, path)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read text layer: %w", err)
	}

	text := strings.TrimSpace(strings.Join(pages, "\n"))
	if utf8.RuneCountInString(text) > e.cfg.MinTextLayerChars {
		return domain.Extraction{Text: text, Method: domain.MethodTextLayer, Pages: len(pages)}, nil
	}

	e.logger.Debug("pdf_text_layer_empty", "path", path, "chars", utf8.RuneCountInString(text))

	images, cleanup, err := e.rasterizer.Rasterize(ctx, path)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("rasterize pdf: %w", err)
	}

	recognized := make([]string, 0, len(images))
	for idx, img := range images {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		pageText, err := e.ocr.Recognize(ctx, img)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("%s page %d: %w", e.ocr.Name(), idx+1, err)
		}
		recognized = append(recognized, strings.TrimSpace(pageText))
	}

	return domain.Extraction{
		Text:   strings.Join(recognized, "\n"),
		Method: domain.MethodPDFOCR,
		Pages:  len(images),
	}, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Extraction{}, err
	}
	text, err := e.ocr.Recognize(ctx, path)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("%s: %w", e.ocr.Name(), err)
	}
	return domain.Extraction{Text: text, Method: domain.MethodImageOCR, Pages: 1}, nil
}

// materialize copies the stored object into a local temp file so that external
// tools (pdftoppm, tesseract) can read it by path.
func (e *Extractor) materialize(ctx context.Context, source domain.Source) (string, func(), error) {
	reader, err := e.storage.Open(ctx, source.StorageKey)
	if err != nil {
		return "", nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	tmp, err := os.CreateTemp(e.cfg.TempDir, "analyzer-*"+mediatype.FileExtension(source.MimeType, source.Filename))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("temp_file_cleanup_failed", "path", tmp.Name(), "error", err)
		}
	}

	if _, err := io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("copy source document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}
