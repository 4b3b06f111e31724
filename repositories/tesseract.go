package repositories

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// TesseractOCR shells out to the tesseract CLI for each page image.
type TesseractOCR struct {
	binary   string
	language string
}

func NewTesseractOCR(binary, language string) *TesseractOCR {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractOCR{binary: binary, language: language}
}

func (t *TesseractOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, t.binary, imagePath, "stdout", "-l", t.language)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract failed on %s: %w: %s", filepath.Base(imagePath), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}
