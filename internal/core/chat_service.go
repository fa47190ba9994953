package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docchat/docchat/internal/store"
)

const chatSystemInstruction = "You are an intelligent assistant specialized in analyzing PDF documents. " +
	"When answering questions about documents: use the provided context when there is one. " +
	"If images are associated with the context, mention that they are available and on which page of the document. " +
	"Be precise and cite page numbers when relevant. " +
	"If the context does not contain enough information, say so clearly."

const sessionTitleMaxLen = 50

// Completer maps an ordered list of role-tagged messages to a text reply.
type Completer interface {
	GetChatCompletion(ctx context.Context, messages []ChatMessage) (string, error)
}

type ChatResult struct {
	Response  string            `json:"response"`
	SessionID string            `json:"sessionId"`
	Context   *RetrievalContext `json:"context,omitempty"`
}

// ChatService owns the session/message lifecycle and assembles the outbound
// prompt from retrieved context plus conversation history.
type ChatService struct {
	dbStore    *store.SQLiteStore
	ragService *RAGService
	completer  Completer
	logger     *zap.Logger
}

func NewChatService(db *store.SQLiteStore, rag *RAGService, completer Completer, logger *zap.Logger) *ChatService {
	return &ChatService{
		dbStore:    db,
		ragService: rag,
		completer:  completer,
		logger:     logger,
	}
}

// HandleChat runs one conversation turn: persist the user message, retrieve
// grounding context when a document is targeted, assemble the prompt, call
// the completion collaborator and persist the assistant reply.
//
// The user message stays persisted even when a later step fails; there is no
// compensating delete.
func (s *ChatService) HandleChat(ctx context.Context, sessionID, documentID, message string) (*ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	var session *store.Session
	var err error
	if sessionID == "" {
		title := deriveSessionTitle(message)
		session, err = s.dbStore.CreateSession(&title)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	} else {
		session, err = s.dbStore.GetSessionByID(sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		if session == nil {
			return nil, ErrSessionNotFound
		}
	}

	userMsg := store.Message{SessionID: session.ID, Role: "user", Content: message}
	if err := s.dbStore.CreateMessage(&userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	var retrieval *RetrievalContext
	if documentID != "" {
		retrieval, err = s.ragService.Retrieve(ctx, message, documentID)
		if err != nil {
			return nil, err
		}
	}

	history, err := s.dbStore.GetMessagesBySession(session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}

	outbound := BuildPromptMessages(history, message, retrieval)
	response, err := s.completer.GetChatCompletion(ctx, outbound)
	if err != nil {
		return nil, err
	}

	assistantMsg := store.Message{
		SessionID: session.ID,
		Role:      "assistant",
		Content:   response,
	}
	if retrieval != nil {
		for _, img := range retrieval.Images {
			assistantMsg.ImagePaths = append(assistantMsg.ImagePaths, img.Path)
		}
		assistantMsg.PageRefs = retrieval.PageRefs
	}
	if err := s.dbStore.CreateMessage(&assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	if err := s.dbStore.TouchSession(session.ID); err != nil {
		s.logger.Warn("failed to refresh session timestamp", zap.String("session_id", session.ID), zap.Error(err))
	}

	return &ChatResult{Response: response, SessionID: session.ID, Context: retrieval}, nil
}

// BuildPromptMessages assembles the outbound sequence: the fixed system
// instruction, every persisted message strictly before the current turn, then
// the current user turn, rewritten with the retrieval context when one is
// present. The just-persisted user message is excluded from the replayed
// history so the model never sees it twice. The full history is replayed
// every turn; there is no length cap.
func BuildPromptMessages(history []store.Message, userMessage string, retrieval *RetrievalContext) []ChatMessage {
	messages := []ChatMessage{{Role: "system", Content: chatSystemInstruction}}

	if len(history) > 0 {
		history = history[:len(history)-1] // drop the just-persisted user turn
	}
	for _, msg := range history {
		messages = append(messages, ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	content := userMessage
	if retrieval != nil && retrieval.RelevantText != "" {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Document context:\n%s\n\nUser question: %s", retrieval.RelevantText, userMessage)
		if len(retrieval.PageRefs) > 0 {
			refs := make([]string, 0, len(retrieval.PageRefs))
			for _, ref := range retrieval.PageRefs {
				refs = append(refs, fmt.Sprintf("Page %d", ref.PageNumber))
			}
			fmt.Fprintf(&sb, "\n\nReferences: %s", strings.Join(refs, ", "))
		}
		if len(retrieval.Images) > 0 {
			imgs := make([]string, 0, len(retrieval.Images))
			for _, img := range retrieval.Images {
				imgs = append(imgs, fmt.Sprintf("Image on page %d", img.PageNumber))
			}
			fmt.Fprintf(&sb, "\n\nImages available: %s", strings.Join(imgs, ", "))
		}
		content = sb.String()
	}

	return append(messages, ChatMessage{Role: "user", Content: content})
}

// ListSessions returns every session, most recently updated first.
func (s *ChatService) ListSessions() ([]store.Session, error) {
	return s.dbStore.ListSessions()
}

// GetSessionHistory returns a session and its messages in creation order.
func (s *ChatService) GetSessionHistory(sessionID string) (*store.Session, []store.Message, error) {
	session, err := s.dbStore.GetSessionByID(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}
	messages, err := s.dbStore.GetMessagesBySession(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session messages: %w", err)
	}
	return session, messages, nil
}

// RecommendedQuestions returns canned conversation starters, document-aware
// when a document is selected.
func (s *ChatService) RecommendedQuestions(documentID string, limit int) []string {
	var questions []string
	if documentID != "" {
		questions = []string{
			"What is the main topic of this document?",
			"Can you summarize the key ideas?",
			"What important information does it contain?",
			"Are there charts or images I should look at?",
			"Can you explain the content of the first page?",
		}
	} else {
		questions = []string{
			"Which documents have been uploaded?",
			"How does this system work?",
			"Can you help me analyze a document?",
		}
	}
	if limit > 0 && limit < len(questions) {
		questions = questions[:limit]
	}
	return questions
}

// deriveSessionTitle truncates the first user message to a displayable title.
func deriveSessionTitle(message string) string {
	title := strings.TrimSpace(message)
	runes := []rune(title)
	if len(runes) > sessionTitleMaxLen {
		title = string(runes[:sessionTitleMaxLen])
	}
	return title
}
