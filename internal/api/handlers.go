package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/docchat/docchat/internal/core"
	"github.com/docchat/docchat/internal/store"
)

const maxUploadSize = 50 << 20 // 50MB

type APIHandler struct {
	chatService *core.ChatService
	ragService  *core.RAGService
	imagesDir   string
	logger      *zap.Logger
}

func NewAPIHandler(cs *core.ChatService, rs *core.RAGService, imagesDir string, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		chatService: cs,
		ragService:  rs,
		imagesDir:   imagesDir,
		logger:      logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart request: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	result, err := h.ragService.IngestDocument(r.Context(), header.Filename, data)
	if err != nil {
		if errors.Is(err, core.ErrInvalidFileType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, core.ErrModelUnavailable) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.logger.Error("document ingestion failed", zap.String("filename", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to ingest document")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *APIHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := h.ragService.ListDocuments()
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *APIHandler) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	if err := h.ragService.DeleteDocument(documentID); err != nil {
		if errors.Is(err, core.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("failed to delete document", zap.String("document_id", documentID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ChatRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"sessionId,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.chatService.HandleChat(r.Context(), req.SessionID, req.DocumentID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrDocumentNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, core.ErrModelUnavailable):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			h.logger.Error("chat turn failed", zap.String("session_id", req.SessionID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to process chat message")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")

	if sessionID == "" {
		sessions, err := h.chatService.ListSessions()
		if err != nil {
			h.logger.Error("failed to list sessions", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to list sessions")
			return
		}
		if sessions == nil {
			sessions = []store.Session{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
		return
	}

	session, messages, err := h.chatService.GetSessionHistory(sessionID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("failed to get session history", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get session history")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session, "messages": messages})
}

func (h *APIHandler) RecommendedQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("documentId")
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	questions := h.chatService.RecommendedQuestions(documentID, limit)
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// ImageHandler serves an extracted image by its path relative to the image
// storage root. Paths resolving outside the root are rejected before any
// filesystem access.
func (h *APIHandler) ImageHandler(w http.ResponseWriter, r *http.Request) {
	imagePath := r.URL.Query().Get("path")
	if imagePath == "" {
		writeError(w, http.StatusBadRequest, "Image path is required")
		return
	}

	root, err := filepath.Abs(h.imagesDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve image root")
		return
	}
	full, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(imagePath)))
	if err != nil || !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		writeError(w, http.StatusForbidden, "Image path not allowed")
		return
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}

	http.ServeFile(w, r, full)
}
