package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txt-worker/domain"
)

type fakeRenderer struct {
	pages     int
	failAt    int
	closed    bool
	mu        sync.Mutex
	renderDir string
}

func (r *fakeRenderer) NumPage() int { return r.pages }

func (r *fakeRenderer) RenderPage(index int, dir string) (string, error) {
	if r.failAt >= 0 && index == r.failAt {
		return "", errors.New("bad xref")
	}
	r.mu.Lock()
	r.renderDir = dir
	r.mu.Unlock()
	path := filepath.Join(dir, fmt.Sprintf("%d.png", index))
	return path, os.WriteFile(path, []byte{byte(index)}, 0o644)
}

func (r *fakeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// fakeOCR answers later pages faster so arrival order differs from index order.
type fakeOCR struct {
	pages int
	err   error
}

func (o *fakeOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", err
	}
	index := int(data[0])
	time.Sleep(time.Duration(o.pages-index) * time.Millisecond)
	return fmt.Sprintf("text %d", index), nil
}

type fakeTextSource struct {
	texts  []string
	failAt int
	closed bool
}

func (s *fakeTextSource) NumPage() int { return len(s.texts) }

func (s *fakeTextSource) PageText(index int) (string, error) {
	if index == s.failAt {
		return "", errors.New("broken content stream")
	}
	return s.texts[index], nil
}

func (s *fakeTextSource) Close() error {
	s.closed = true
	return nil
}

func collect(t *testing.T, events <-chan domain.ExtractionEvent) []domain.ExtractionEvent {
	t.Helper()
	var all []domain.ExtractionEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return all
			}
			all = append(all, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

func newTestEngine(r PageRenderer, ocr OCRRunner, concurrency int) *PDFEngine {
	e := NewPDFEngine(ocr, WithConcurrency(concurrency))
	e.openRenderer = func(string, float64) (PageRenderer, error) { return r, nil }
	return e
}

func TestPDFEngine_OCREmitsEveryPageThenComplete(t *testing.T) {
	r := &fakeRenderer{pages: 6, failAt: -1}
	e := newTestEngine(r, &fakeOCR{pages: 6}, 3)

	events, err := e.Start(context.Background(), "/in/book.pdf", domain.ModeOCR)
	require.NoError(t, err)
	all := collect(t, events)

	require.Len(t, all, 7)
	seen := map[int]string{}
	for _, ev := range all[:6] {
		assert.Equal(t, domain.EventPage, ev.Kind)
		seen[ev.Page.Index] = ev.Page.Text
	}
	for i := 0; i < 6; i++ {
		assert.Equal(t, fmt.Sprintf("text %d", i), seen[i])
	}
	assert.Equal(t, domain.EventComplete, all[6].Kind)
	assert.True(t, r.closed)

	_, statErr := os.Stat(r.renderDir)
	assert.True(t, os.IsNotExist(statErr), "temp render dir must be removed")
}

func TestPDFEngine_OCRSingleTerminalForAnyConcurrency(t *testing.T) {
	for _, concurrency := range []int{1, 2, 5, 16} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			e := newTestEngine(&fakeRenderer{pages: 5, failAt: -1}, &fakeOCR{pages: 5}, concurrency)

			events, err := e.Start(context.Background(), "/in/book.pdf", domain.ModeOCR)
			require.NoError(t, err)
			all := collect(t, events)

			pages, terminals := 0, 0
			for _, ev := range all {
				if ev.Kind == domain.EventPage {
					pages++
				} else {
					terminals++
				}
			}
			assert.Equal(t, 5, pages)
			assert.Equal(t, 1, terminals)
			assert.Equal(t, domain.EventComplete, all[len(all)-1].Kind)
		})
	}
}

func TestPDFEngine_OCRZeroPages(t *testing.T) {
	e := newTestEngine(&fakeRenderer{pages: 0, failAt: -1}, &fakeOCR{}, 2)

	events, err := e.Start(context.Background(), "/in/empty.pdf", domain.ModeOCR)
	require.NoError(t, err)
	all := collect(t, events)

	require.Len(t, all, 1)
	assert.Equal(t, domain.EventComplete, all[0].Kind)
}

func TestPDFEngine_OCRRenderFailureEndsWithSingleError(t *testing.T) {
	e := newTestEngine(&fakeRenderer{pages: 4, failAt: 2}, &fakeOCR{pages: 4}, 1)

	events, err := e.Start(context.Background(), "/in/book.pdf", domain.ModeOCR)
	require.NoError(t, err)
	all := collect(t, events)

	terminal := 0
	for _, ev := range all {
		if ev.Kind != domain.EventPage {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	last := all[len(all)-1]
	assert.Equal(t, domain.EventError, last.Kind)
	assert.Contains(t, last.Err.Error(), "failed to render page 3")
}

func TestPDFEngine_OCRRecognizeFailure(t *testing.T) {
	e := newTestEngine(&fakeRenderer{pages: 2, failAt: -1}, &fakeOCR{err: errors.New("tesseract missing")}, 2)

	events, err := e.Start(context.Background(), "/in/book.pdf", domain.ModeOCR)
	require.NoError(t, err)
	all := collect(t, events)

	require.Len(t, all, 1)
	assert.Equal(t, domain.EventError, all[0].Kind)
	assert.ErrorContains(t, all[0].Err, "tesseract missing")
}

func TestPDFEngine_OpenFailureIsSynchronous(t *testing.T) {
	e := NewPDFEngine(&fakeOCR{})
	e.openRenderer = func(string, float64) (PageRenderer, error) { return nil, errors.New("no such file") }

	events, err := e.Start(context.Background(), "/missing.pdf", domain.ModeOCR)

	assert.Nil(t, events)
	assert.EqualError(t, err, "no such file")
}

func TestPDFEngine_TextMode(t *testing.T) {
	src := &fakeTextSource{texts: []string{"Hello", "World"}, failAt: -1}
	e := NewPDFEngine(nil)
	e.openText = func(string) (TextSource, error) { return src, nil }

	events, err := e.Start(context.Background(), "/in/book.pdf", domain.ModeText)
	require.NoError(t, err)
	all := collect(t, events)

	require.Len(t, all, 3)
	assert.Equal(t, domain.PageEvent(0, "Hello"), all[0])
	assert.Equal(t, domain.PageEvent(1, "World"), all[1])
	assert.Equal(t, domain.EventComplete, all[2].Kind)
	assert.True(t, src.closed)
}

func TestPDFEngine_TextModeError(t *testing.T) {
	src := &fakeTextSource{texts: []string{"Hello", "?"}, failAt: 1}
	e := NewPDFEngine(nil)
	e.openText = func(string) (TextSource, error) { return src, nil }

	events, err := e.Start(context.Background(), "/in/book.pdf", domain.ModeText)
	require.NoError(t, err)
	all := collect(t, events)

	require.Len(t, all, 2)
	assert.Equal(t, domain.EventPage, all[0].Kind)
	assert.Equal(t, domain.EventError, all[1].Kind)
}

func TestPDFEngine_UnknownMode(t *testing.T) {
	_, err := NewPDFEngine(nil).Start(context.Background(), "/in/book.pdf", domain.Mode("png"))
	assert.ErrorIs(t, err, domain.ErrUnknownMode)
}

func TestPDFEngine_TextOpenerRejectsMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pdf")

	events, err := NewPDFEngine(nil).Start(context.Background(), missing, domain.ModeText)

	assert.Nil(t, events)
	assert.ErrorContains(t, err, "failed to open PDF")
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "tesseract")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestTesseractOCR_Recognize(t *testing.T) {
	bin := writeScript(t, `echo "recognized $1 $2 $3 $4"`)

	text, err := NewTesseractOCR(bin, "deu").Recognize(context.Background(), "/tmp/page_0001.png")

	require.NoError(t, err)
	assert.Equal(t, "recognized /tmp/page_0001.png stdout -l deu\n", text)
}

func TestTesseractOCR_Failure(t *testing.T) {
	bin := writeScript(t, `echo "Error opening data file" >&2; exit 1`)

	_, err := NewTesseractOCR(bin, "").Recognize(context.Background(), "/tmp/page_0001.png")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract failed on page_0001.png")
	assert.Contains(t, err.Error(), "Error opening data file")
}
