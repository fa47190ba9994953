package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/docchat/docchat/internal/config"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"
)

// ChatMessage is one role-tagged turn of an outbound prompt.
// Role is "system", "user" or "assistant".
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMService wraps the Gemini client behind the embedding and completion
// collaborator contracts. A single instance is shared by every request.
type LLMService struct {
	client *genai.Client
	logger *zap.Logger
}

func NewLLMService(logger *zap.Logger) (*LLMService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, logger: logger}, nil
}

func (s *LLMService) Close() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("error closing GenAI client", zap.Error(err))
	}
}

// GetEmbedding maps text to a fixed-length vector. The model is fixed for
// the lifetime of the service, so vectors embedded at different times stay
// comparable.
func (s *LLMService) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request failed: %v", ErrModelUnavailable, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding data received", ErrModelUnavailable)
	}
	return res.Embedding.Values, nil
}

// GetChatCompletion sends an ordered message sequence and returns the model's
// text reply. Leading "system" messages become the system instruction; the
// final message must be the current user turn.
func (s *LLMService) GetChatCompletion(ctx context.Context, messages []ChatMessage) (string, error) {
	var systemParts []genai.Part
	var history []*genai.Content
	for _, msg := range messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, genai.Text(msg.Content))
			continue
		}
		history = append(history, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	if len(history) == 0 {
		return "", fmt.Errorf("prompt history is empty for chat completion")
	}
	last := history[len(history)-1]
	if last.Role != "user" {
		return "", fmt.Errorf("last message in history is not from 'user', cannot proceed with chat completion")
	}

	model := s.client.GenerativeModel(defaultChatModelName)
	if len(systemParts) > 0 {
		model.SystemInstruction = &genai.Content{Parts: systemParts}
	}

	temp := float32(0.7)
	maxTokens := int32(2000)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion failed: %v", ErrModelUnavailable, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		s.logger.Warn("model response was empty or had no valid candidates")
		return "I'm sorry, I couldn't generate a response at this time. Please try again.", nil
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			s.logger.Warn("model response part was not text", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}

	if responseText.Len() == 0 {
		return "I received an empty or non-text response, please try rephrasing your question.", nil
	}
	return responseText.String(), nil
}

// geminiRole maps the stored role names onto the Gemini wire roles.
func geminiRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}
