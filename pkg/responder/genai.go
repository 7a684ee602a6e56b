package responder

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"smartscribe/pkg/apperr"
)

// GenAIEngine generates assistant replies using Google's Gemini API.
type GenAIEngine struct {
	client *genai.Client
	model  string
}

// NewGenAIEngine creates a Gemini-backed responder.
func NewGenAIEngine(apiKey, model string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIEngine{client: client, model: model}, nil
}

// Generate builds a single prompt from the question, history and
// transcript context and asks the model for one reply.
func (e *GenAIEngine) Generate(ctx context.Context, p Prompt) (string, error) {
	var b strings.Builder
	b.WriteString("Answer the question based on the conversation and the transcript context.\n")
	if p.Context != "" {
		b.WriteString("\nTranscript context:\n")
		b.WriteString(p.Context)
		b.WriteString("\n")
	}
	if len(p.History) > 0 {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(strings.Join(p.History, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(p.Question)

	contents := []*genai.Content{
		genai.NewContentFromText(b.String(), genai.RoleUser),
	}
	result, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return "", apperr.Upstream("assistant_reply", err)
	}
	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", apperr.Upstream("assistant_reply", fmt.Errorf("empty completion from %s", e.model))
	}
	return strings.TrimSpace(text), nil
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}
