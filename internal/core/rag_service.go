package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docchat/docchat/internal/extract"
	"github.com/docchat/docchat/internal/store"
	"github.com/docchat/docchat/internal/vectorstore"
)

const (
	NumRelevantChunks = 3  // Number of chunks to retrieve for context
	MinPageTextLength = 10 // Pages with less trimmed text are stored but not chunked
)

// Embedder maps text to a fixed-length numeric vector. Must be deterministic
// for identical input within the lifetime of one vector store.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

type RetrievalImage struct {
	PageNumber int    `json:"pageNumber"`
	Path       string `json:"imagePath"` // relative to the image storage root
}

// RetrievalContext is the grounding bundle for one query: the top-ranked
// chunk text, the images resolved for the matched pages and the (document,
// page) pairs the answer is grounded in. A nil *RetrievalContext means "no
// grounding available", which is distinct from an empty one.
type RetrievalContext struct {
	RelevantText string           `json:"relevantText"`
	Images       []RetrievalImage `json:"images"`
	PageRefs     []store.PageRef  `json:"pdfReferences"`
}

type IngestResult struct {
	DocumentID string `json:"documentId"`
	Pages      int    `json:"pages"`
	Images     int    `json:"images"`
}

// RAGOptions carries the filesystem roots and chunking policy for the
// orchestrator.
type RAGOptions struct {
	UploadDir    string
	ImagesDir    string
	ChunkSize    int
	ChunkOverlap int
}

// RAGService drives ingestion (extract, chunk, embed, insert) and query-time
// retrieval (embed, rank, package context).
type RAGService struct {
	dbStore   *store.SQLiteStore
	vecStore  *vectorstore.SQLiteStore
	embedder  Embedder
	extractor extract.Extractor
	opts      RAGOptions
	logger    *zap.Logger
}

func NewRAGService(db *store.SQLiteStore, vec *vectorstore.SQLiteStore, embedder Embedder, extractor extract.Extractor, opts RAGOptions, logger *zap.Logger) *RAGService {
	return &RAGService{
		dbStore:   db,
		vecStore:  vec,
		embedder:  embedder,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
	}
}

// IngestDocument extracts the document, persists its pages and images, and
// chunks/embeds every page whose text is long enough. Per-page and per-chunk
// failures are logged and skipped; only whole-document failures abort.
func (s *RAGService) IngestDocument(ctx context.Context, filename string, data []byte) (*IngestResult, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, ErrInvalidFileType
	}

	extracted, err := s.extractor.Extract(data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract document: %w", err)
	}

	docID := uuid.NewString()
	baseName := filepath.Base(filename)

	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	filePath := filepath.Join(s.opts.UploadDir, docID+"_"+baseName)
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to save uploaded file: %w", err)
	}

	doc := store.Document{
		ID:         docID,
		Filename:   baseName,
		FilePath:   filePath,
		FileSize:   int64(len(data)),
		TotalPages: len(extracted.Pages),
	}
	if err := s.dbStore.CreateDocument(&doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	for _, page := range extracted.Pages {
		if err := s.ingestPage(ctx, docID, page); err != nil {
			s.logger.Warn("failed to ingest page",
				zap.String("document_id", docID), zap.Int("page", page.Number), zap.Error(err))
		}
	}

	imageCount := s.saveImages(docID, extracted.Images)

	s.logger.Info("document ingested",
		zap.String("document_id", docID),
		zap.String("filename", baseName),
		zap.Int("pages", len(extracted.Pages)),
		zap.Int("images", imageCount))

	return &IngestResult{DocumentID: docID, Pages: len(extracted.Pages), Images: imageCount}, nil
}

// ingestPage stores one page and, when its text is long enough, inserts one
// vector record per chunk. Pages below the length threshold are stored
// without chunks; that is intentional, not an error.
func (s *RAGService) ingestPage(ctx context.Context, docID string, page extract.Page) error {
	text := page.Text
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("[No extractable content on page %d]", page.Number)
	}

	pageRecord := store.Page{DocumentID: docID, PageNumber: page.Number, Text: text}
	if err := s.dbStore.CreatePage(&pageRecord); err != nil {
		return err
	}

	if len(strings.TrimSpace(text)) <= MinPageTextLength {
		return nil
	}

	chunks, err := ChunkText(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if err != nil {
		return err
	}
	for i, chunk := range chunks {
		embedding, err := s.embedder.GetEmbedding(ctx, chunk)
		if err != nil {
			s.logger.Warn("failed to embed chunk, skipping",
				zap.String("document_id", docID), zap.Int("page", page.Number), zap.Int("chunk", i), zap.Error(err))
			continue
		}
		rec := vectorstore.Record{
			DocumentID: docID,
			PageID:     pageRecord.ID,
			PageNumber: page.Number,
			ChunkIndex: i,
			Text:       chunk,
			Embedding:  embedding,
		}
		if err := s.vecStore.Insert(&rec); err != nil {
			// A dimension mismatch is fatal to this insertion only;
			// the remaining chunks still get their chance.
			s.logger.Warn("failed to insert vector record, skipping",
				zap.String("document_id", docID), zap.Int("page", page.Number), zap.Int("chunk", i), zap.Error(err))
		}
	}
	return nil
}

// saveImages writes extracted image blobs under the per-document image
// directory and records a reference for each. Failed items are skipped.
func (s *RAGService) saveImages(docID string, images []extract.Image) int {
	if len(images) == 0 {
		return 0
	}
	imageDir := filepath.Join(s.opts.ImagesDir, docID)
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		s.logger.Warn("failed to create image directory, skipping image extraction",
			zap.String("document_id", docID), zap.Error(err))
		return 0
	}

	count := 0
	for _, img := range images {
		imagePath := filepath.Join(imageDir, fmt.Sprintf("page_%d_img_%d.png", img.PageNumber, img.Index+1))
		if err := os.WriteFile(imagePath, img.Data, 0o644); err != nil {
			s.logger.Warn("failed to save image, skipping",
				zap.String("document_id", docID), zap.Int("page", img.PageNumber), zap.Error(err))
			continue
		}
		ref := store.ImageRef{DocumentID: docID, PageNumber: img.PageNumber, Path: imagePath, Index: count}
		if err := s.dbStore.CreateImage(&ref); err != nil {
			s.logger.Warn("failed to record image, skipping",
				zap.String("document_id", docID), zap.Int("page", img.PageNumber), zap.Error(err))
			continue
		}
		count++
	}
	return count
}

// Retrieve embeds the query, ranks the document's vector records and packages
// the top chunks with their page and image references. A nil context with a
// nil error means the document has no grounding to offer for this query.
func (s *RAGService) Retrieve(ctx context.Context, query, documentID string) (*RetrievalContext, error) {
	doc, err := s.dbStore.GetDocumentByID(documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	queryEmbedding, err := s.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	records, err := s.vecStore.ListByDocument(documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vector records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	scored := RankRecords(queryEmbedding, records, s.logger)
	if len(scored) == 0 {
		return nil, nil
	}
	if len(scored) > NumRelevantChunks {
		scored = scored[:NumRelevantChunks]
	}

	texts := make([]string, 0, len(scored))
	var pageNumbers []int
	seen := make(map[int]bool)
	for _, sc := range scored {
		texts = append(texts, sc.Record.Text)
		if !seen[sc.Record.PageNumber] {
			seen[sc.Record.PageNumber] = true
			pageNumbers = append(pageNumbers, sc.Record.PageNumber)
		}
	}

	imageRefs, err := s.dbStore.GetImagesByPages(documentID, pageNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve images: %w", err)
	}
	images := make([]RetrievalImage, 0, len(imageRefs))
	for _, ref := range imageRefs {
		images = append(images, RetrievalImage{
			PageNumber: ref.PageNumber,
			Path:       s.relativeImagePath(ref.Path),
		})
	}

	pageRefs := make([]store.PageRef, 0, len(pageNumbers))
	for _, pn := range pageNumbers {
		pageRefs = append(pageRefs, store.PageRef{DocumentID: documentID, PageNumber: pn})
	}

	return &RetrievalContext{
		RelevantText: strings.Join(texts, "\n\n"),
		Images:       images,
		PageRefs:     pageRefs,
	}, nil
}

// ListDocuments returns every ingested document, newest first.
func (s *RAGService) ListDocuments() ([]store.Document, error) {
	return s.dbStore.ListDocuments()
}

// DeleteDocument removes the document's rows, vector records and stored
// files. File removal failures are logged, not fatal.
func (s *RAGService) DeleteDocument(documentID string) error {
	doc, err := s.dbStore.GetDocumentByID(documentID)
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	if err := s.vecStore.DeleteByDocument(documentID); err != nil {
		return err
	}
	if _, err := s.dbStore.DeleteDocument(documentID); err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Join(s.opts.ImagesDir, documentID)); err != nil {
		s.logger.Warn("failed to remove image directory", zap.String("document_id", documentID), zap.Error(err))
	}
	if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove uploaded file", zap.String("document_id", documentID), zap.Error(err))
	}
	return nil
}

// relativeImagePath normalizes a stored image path to be relative to the
// image storage root, with forward slashes, stripping the root prefix when
// present.
func (s *RAGService) relativeImagePath(path string) string {
	p := filepath.ToSlash(path)
	root := filepath.ToSlash(s.opts.ImagesDir)
	if root != "" && !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return strings.TrimPrefix(p, root)
}
