package core

import (
	"context"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docchat/docchat/internal/extract"
	"github.com/docchat/docchat/internal/store"
	"github.com/docchat/docchat/internal/vectorstore"
)

// fakeEmbedder maps text to a deterministic hashed bag-of-words vector, so
// chunks sharing words with a query score higher than unrelated ones.
type fakeEmbedder struct {
	dim   int
	calls int
	fail  bool
}

func (f *fakeEmbedder) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("%w: embedding backend down", ErrModelUnavailable)
	}
	vec := make([]float32, f.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%uint32(f.dim)]++
	}
	return vec, nil
}

// fakeCompleter records the outbound prompt and returns a canned reply.
type fakeCompleter struct {
	received []ChatMessage
	reply    string
	fail     bool
}

func (f *fakeCompleter) GetChatCompletion(_ context.Context, messages []ChatMessage) (string, error) {
	f.received = messages
	if f.fail {
		return "", fmt.Errorf("%w: completion backend down", ErrModelUnavailable)
	}
	if f.reply == "" {
		return "canned reply", nil
	}
	return f.reply, nil
}

// fakeExtractor returns a preset extraction result.
type fakeExtractor struct {
	result *extract.Result
	err    error
}

func (f *fakeExtractor) Extract(_ []byte) (*extract.Result, error) {
	return f.result, f.err
}

func newTestStores(t *testing.T) (*store.SQLiteStore, *vectorstore.SQLiteStore) {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	vecStore, err := vectorstore.NewSQLiteStore(dbStore.DB())
	require.NoError(t, err)
	return dbStore, vecStore
}

func newTestRAGService(t *testing.T, dbStore *store.SQLiteStore, vecStore *vectorstore.SQLiteStore, embedder Embedder, extractor extract.Extractor) *RAGService {
	t.Helper()
	dataDir := t.TempDir()
	opts := RAGOptions{
		UploadDir:    filepath.Join(dataDir, "uploads"),
		ImagesDir:    filepath.Join(dataDir, "images"),
		ChunkSize:    500,
		ChunkOverlap: 50,
	}
	return NewRAGService(dbStore, vecStore, embedder, extractor, opts, zap.NewNop())
}

// wordText builds a text of n distinct words with the given prefix.
func wordText(prefix string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(words, " ")
}
