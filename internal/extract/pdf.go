// Package extract pulls page-numbered text and image blobs out of raw
// document bytes. Extraction may fail per page or per image; a failed page
// yields a placeholder string and a failed image is skipped, neither aborts
// the document.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

type Page struct {
	Number int // 1-based
	Text   string
}

type Image struct {
	PageNumber int
	Index      int // extraction order within the document
	Data       []byte
}

type Result struct {
	Pages  []Page
	Images []Image
}

type Extractor interface {
	Extract(data []byte) (*Result, error)
}

// PDFExtractor reads PDFs with ledongthuc/pdf. Text comes from the page
// content streams; images are limited to embedded DCT-encoded (JPEG)
// XObjects, which is best-effort by design. It cannot rasterize pages.
type PDFExtractor struct {
	logger *zap.Logger
}

func NewPDFExtractor(logger *zap.Logger) *PDFExtractor {
	return &PDFExtractor{logger: logger}
}

func (e *PDFExtractor) Extract(data []byte) (*Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	result := &Result{}
	numPages := r.NumPage()
	imageCount := 0
	for i := 1; i <= numPages; i++ {
		text := e.pageText(r, i)
		if strings.TrimSpace(text) == "" {
			e.logger.Warn("no extractable text on page", zap.Int("page", i))
			text = fmt.Sprintf("[No extractable content on page %d]", i)
		}
		result.Pages = append(result.Pages, Page{Number: i, Text: text})

		for _, img := range e.pageImages(r, i) {
			result.Images = append(result.Images, Image{
				PageNumber: i,
				Index:      imageCount,
				Data:       img,
			})
			imageCount++
		}
	}
	return result, nil
}

// pageText extracts the plain text of one page, recovering to an empty
// string on failure. The pdf library panics on some malformed content
// streams, so the recover is load-bearing.
func (e *PDFExtractor) pageText(r *pdf.Reader, number int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("page text extraction panicked", zap.Int("page", number), zap.Any("panic", rec))
			text = ""
		}
	}()

	page := r.Page(number)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		e.logger.Warn("page text extraction failed", zap.Int("page", number), zap.Error(err))
		return ""
	}
	return text
}

// pageImages walks the page's XObject resources and returns the byte blobs
// of the image streams it can decode. Unsupported encodings are skipped.
func (e *PDFExtractor) pageImages(r *pdf.Reader, number int) [][]byte {
	page := r.Page(number)
	if page.V.IsNull() {
		return nil
	}
	xobjects := page.V.Key("Resources").Key("XObject")
	if xobjects.IsNull() {
		return nil
	}

	var images [][]byte
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		data := e.readImageStream(obj, number, name)
		if len(data) > 0 {
			images = append(images, data)
		}
	}
	return images
}

func (e *PDFExtractor) readImageStream(obj pdf.Value, page int, name string) (data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("image stream extraction panicked",
				zap.Int("page", page), zap.String("xobject", name), zap.Any("panic", rec))
			data = nil
		}
	}()

	rd := obj.Reader()
	defer rd.Close()
	data, err := io.ReadAll(rd)
	if err != nil {
		e.logger.Warn("image stream extraction failed",
			zap.Int("page", page), zap.String("xobject", name), zap.Error(err))
		return nil
	}
	return data
}
