package repositories

import (
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"txt-worker/domain"
)

// PageRenderer turns PDF pages into image files for OCR.
type PageRenderer interface {
	NumPage() int
	RenderPage(index int, dir string) (string, error)
	Close() error
}

// TextSource reads the embedded text layer of a PDF.
type TextSource interface {
	NumPage() int
	PageText(index int) (string, error)
	Close() error
}

// OCRRunner recognizes the text in a single page image.
type OCRRunner interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// PDFEngine produces a stream of page events for a PDF, either by OCR or from its text layer.
type PDFEngine struct {
	ocr          OCRRunner
	dpi          float64
	concurrency  int
	openRenderer func(path string, dpi float64) (PageRenderer, error)
	openText     func(path string) (TextSource, error)
}

type EngineOption func(*PDFEngine)

func WithDPI(dpi float64) EngineOption {
	return func(e *PDFEngine) {
		if dpi > 0 {
			e.dpi = dpi
		}
	}
}

func WithConcurrency(n int) EngineOption {
	return func(e *PDFEngine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func NewPDFEngine(ocr OCRRunner, opts ...EngineOption) *PDFEngine {
	e := &PDFEngine{
		ocr:          ocr,
		dpi:          300,
		concurrency:  1,
		openRenderer: openFitzRenderer,
		openText:     openPDFText,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens sourcePath and returns the event stream. Open failures are returned directly.
// The channel carries page events followed by exactly one complete or error event, then closes.
// Page events arrive in completion order; consumers must name output by Page.Index.
func (e *PDFEngine) Start(ctx context.Context, sourcePath string, mode domain.Mode) (<-chan domain.ExtractionEvent, error) {
	switch mode {
	case domain.ModeOCR:
		r, err := e.openRenderer(sourcePath, e.dpi)
		if err != nil {
			return nil, err
		}
		tmpDir, err := os.MkdirTemp("", "txt-worker-*")
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
		out := make(chan domain.ExtractionEvent, e.concurrency*2)
		go e.runOCR(ctx, r, tmpDir, out)
		return out, nil

	case domain.ModeText:
		src, err := e.openText(sourcePath)
		if err != nil {
			return nil, err
		}
		out := make(chan domain.ExtractionEvent, 8)
		go e.runText(ctx, src, out)
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}
}

func (e *PDFEngine) runOCR(ctx context.Context, r PageRenderer, tmpDir string, out chan<- domain.ExtractionEvent) {
	defer close(out)
	defer os.RemoveAll(tmpDir)
	defer r.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := 0; i < r.NumPage(); i++ {
		index := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			imgPath, err := r.RenderPage(index, tmpDir)
			if err != nil {
				return fmt.Errorf("failed to render page %d: %w", index+1, err)
			}
			defer os.Remove(imgPath)

			text, err := e.ocr.Recognize(gctx, imgPath)
			if err != nil {
				return fmt.Errorf("failed to recognize page %d: %w", index+1, err)
			}

			select {
			case out <- domain.PageEvent(index, text):
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	if err := g.Wait(); err != nil {
		out <- domain.ErrorEvent(err)
		return
	}
	out <- domain.CompleteEvent()
}

func (e *PDFEngine) runText(ctx context.Context, src TextSource, out chan<- domain.ExtractionEvent) {
	defer close(out)
	defer src.Close()

	for i := 0; i < src.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			out <- domain.ErrorEvent(err)
			return
		}
		text, err := src.PageText(i)
		if err != nil {
			out <- domain.ErrorEvent(fmt.Errorf("failed to read page %d: %w", i+1, err))
			return
		}
		out <- domain.PageEvent(i, text)
	}
	out <- domain.CompleteEvent()
}

type fitzRenderer struct {
	mu  sync.Mutex
	doc *fitz.Document
	dpi float64
}

func openFitzRenderer(path string, dpi float64) (PageRenderer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	return &fitzRenderer{doc: doc, dpi: dpi}, nil
}

func (r *fitzRenderer) NumPage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.NumPage()
}

func (r *fitzRenderer) RenderPage(index int, dir string) (string, error) {
	r.mu.Lock()
	img, err := r.doc.ImageDPI(index, r.dpi)
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("page_%04d.png", index+1))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func (r *fitzRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Close()
}

type pdfTextSource struct {
	file   *os.File
	reader *pdf.Reader
}

func openPDFText(path string) (TextSource, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	return &pdfTextSource{file: f, reader: r}, nil
}

func (s *pdfTextSource) NumPage() int {
	return s.reader.NumPage()
}

func (s *pdfTextSource) PageText(index int) (text string, err error) {
	// ledongthuc/pdf panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered while reading page %d: %v", index+1, r)
			err = fmt.Errorf("unreadable page content: %v", r)
		}
	}()

	page := s.reader.Page(index + 1)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func (s *pdfTextSource) Close() error {
	return s.file.Close()
}
