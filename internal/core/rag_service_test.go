package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docchat/docchat/internal/extract"
)

func TestIngestDocument_RejectsNonPDF(t *testing.T) {
	dbStore, vecStore := newTestStores(t)
	svc := newTestRAGService(t, dbStore, vecStore, &fakeEmbedder{dim: 16}, &fakeExtractor{})

	_, err := svc.IngestDocument(context.Background(), "notes.txt", []byte("hello"))
	assert.True(t, errors.Is(err, ErrInvalidFileType))

	docs, err := dbStore.ListDocuments()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngestDocument_ChunksOnlyLongPages(t *testing.T) {
	dbStore, vecStore := newTestStores(t)
	embedder := &fakeEmbedder{dim: 16}
	extractor := &fakeExtractor{result: &extract.Result{
		Pages: []extract.Page{
			{Number: 1, Text: "zebra " + wordText("alpha", 600)},
			{Number: 2, Text: "ok go now"}, // 9 chars, below the chunking threshold
		},
	}}
	svc := newTestRAGService(t, dbStore, vecStore, embedder, extractor)

	result, err := svc.IngestDocument(context.Background(), "animals.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 0, result.Images)

	pages, err := dbStore.GetPagesByDocument(result.DocumentID)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	records, err := vecStore.ListByDocument(result.DocumentID)
	require.NoError(t, err)
	// 601 words, window 500, stride 450: two chunks, both from page 1.
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, 1, rec.PageNumber)
	}
}

func TestIngestDocument_SavesUploadAndImages(t *testing.T) {
	dbStore, vecStore := newTestStores(t)
	extractor := &fakeExtractor{result: &extract.Result{
		Pages: []extract.Page{{Number: 1, Text: "short"}},
		Images: []extract.Image{
			{PageNumber: 1, Index: 0, Data: []byte("img-a")},
			{PageNumber: 1, Index: 1, Data: []byte("img-b")},
		},
	}}
	svc := newTestRAGService(t, dbStore, vecStore, &fakeEmbedder{dim: 16}, extractor)

	result, err := svc.IngestDocument(context.Background(), "scan.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Images)

	doc, err := dbStore.GetDocumentByID(result.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	saved, err := os.ReadFile(doc.FilePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), saved)

	images, err := dbStore.GetImagesByPages(result.DocumentID, nil)
	require.NoError(t, err)
	require.Len(t, images, 2)
	for _, img := range images {
		data, err := os.ReadFile(img.Path)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

func TestIngestDocument_PlaceholderForEmptyPageText(t *testing.T) {
	dbStore, vecStore := newTestStores(t)
	extractor := &fakeExtractor{result: &extract.Result{
		Pages: []extract.Page{{Number: 1, Text: "   "}},
	}}
	svc := newTestRAGService(t, dbStore, vecStore, &fakeEmbedder{dim: 16}, extractor)

	result, err := svc.IngestDocument(context.Background(), "blank.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	pages, err := dbStore.GetPagesByDocument(result.DocumentID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.NotEmpty(t, strings.TrimSpace(pages[0].Text))
}

func TestRetrieve_TopChunksAndPageRefs(t *testing.T) {
	dbStore, vecStore := newTestStores(t)
	embedder := &fakeEmbedder{dim: 64}
	extractor := &fakeExtractor{result: &extract.Result{
		Pages: []extract.Page{
			{Number: 1, Text: "zebra habitat migration " + wordText("alpha", 600)},
			{Number: 2, Text: "ok go now"},
		},
		Images: []extract.Image{
			{PageNumber: 1, Index: 0, Data: []byte("img")},
			{PageNumber: 9, Index: 1, Data: []byte("img")},
		},
	}}
	svc := newTestRAGService(t, dbStore, vecStore, embedder, extractor)

	result, err := svc.IngestDocument(context.Background(), "animals.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	rc, err := svc.Retrieve(context.Background(), "zebra habitat migration", result.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, rc)

	assert.Contains(t, rc.RelevantText, "zebra")
	require.Len(t, rc.PageRefs, 1)
	assert.Equal(t, 1, rc.PageRefs[0].PageNumber)
	assert.Equal(t, result.DocumentID, rc.PageRefs[0].DocumentID)

	// Only page 1 matched, so only its image is resolved, and the path is
	// relative to the image storage root.
	require.Len(t, rc.Images, 1)
	assert.Equal(t, 1, rc.Images[0].PageNumber)
	assert.False(t, filepath.IsAbs(rc.Images[0].Path))
	assert.Equal(t, filepath.ToSlash(filepath.Join(result.DocumentID, "page_1_img_1.png")), rc.Images[0].Path)
}

func TestRetrieve_AbsentWhenNoVectors(t *testing.T) {
	dbStore, vecStore := newTestStores(t)
	extractor := &fakeExtractor{result: &extract.Result{
		Pages: []extract.Page{{Number: 1, Text: "short"}},
	}}
	svc := newTestRAGService(t, dbStore, vecStore, &fakeEmbedder{dim: 16}, extractor)

	result, err := svc.IngestDocument(context.Background(), "tiny.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	rc, err := svc.Retrieve(context.Background(), "anything", result.DocumentID)
	require.NoError(t, err)
	assert.Nil(t, rc)
}

func TestRetrieve_UnknownDocument(t *testing.T) {
	dbStore, vecStore := newTestStores(t)
	svc := newTestRAGService(t, dbStore, vecStore, &fakeEmbedder{dim: 16}, &fakeExtractor{})

	_, err := svc.Retrieve(context.Background(), "anything", "no-such-doc")
	assert.True(t, errors.Is(err, ErrDocumentNotFound))
}

func TestRetrieve_EmbedderFailureSurfaced(t *testing.T) {
	dbStore, vecStore := newTestStores(t)
	embedder := &fakeEmbedder{dim: 16}
	extractor := &fakeExtractor{result: &extract.Result{
		Pages: []extract.Page{{Number: 1, Text: wordText("beta", 100)}},
	}}
	svc := newTestRAGService(t, dbStore, vecStore, embedder, extractor)

	result, err := svc.IngestDocument(context.Background(), "doc.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	embedder.fail = true
	_, err = svc.Retrieve(context.Background(), "anything", result.DocumentID)
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestDeleteDocument_RemovesEverything(t *testing.T) {
	dbStore, vecStore := newTestStores(t)
	extractor := &fakeExtractor{result: &extract.Result{
		Pages:  []extract.Page{{Number: 1, Text: wordText("gamma", 100)}},
		Images: []extract.Image{{PageNumber: 1, Index: 0, Data: []byte("img")}},
	}}
	svc := newTestRAGService(t, dbStore, vecStore, &fakeEmbedder{dim: 16}, extractor)

	result, err := svc.IngestDocument(context.Background(), "doc.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDocument(result.DocumentID))

	doc, err := dbStore.GetDocumentByID(result.DocumentID)
	require.NoError(t, err)
	assert.Nil(t, doc)

	records, err := vecStore.ListByDocument(result.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.True(t, errors.Is(svc.DeleteDocument(result.DocumentID), ErrDocumentNotFound))
}
