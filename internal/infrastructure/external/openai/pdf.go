package openai

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// renderPDFPages rasterises up to maxPages pages of a PDF into JPEG images
func renderPDFPages(content []byte, maxPages int, logger *zap.Logger) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if maxPages > 0 && pageCount > maxPages {
		pageCount = maxPages
	}

	images := make([][]byte, 0, pageCount)
	for page := 0; page < pageCount; page++ {
		img, err := doc.Image(page)
		if err != nil {
			logger.Warn("Failed to render PDF page", zap.Int("page", page), zap.Error(err))
			continue
		}
		encoded, err := encodeJPEG(img)
		if err != nil {
			logger.Warn("Failed to encode PDF page", zap.Int("page", page), zap.Error(err))
			continue
		}
		images = append(images, encoded)
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("no pages rendered from PDF")
	}
	return images, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
