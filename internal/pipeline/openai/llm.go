// Package openai implements pipeline.LLM against an OpenAI-compatible
// chat completion API, using sashabaranov/go-openai — the client
// library haasonsaas-nexus uses for the same concern in the pack.
package openai

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// LLM adapts an OpenAI client to pipeline.LLM.
type LLM struct {
	client *openai.Client
	model  string
}

func New(apiKey, model string) *LLM {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &LLM{client: openai.NewClient(apiKey), model: model}
}

// Generate implements pipeline.LLM.Generate (§4.3). The system prompt
// and bounded history are translated into OpenAI chat messages; on
// timeout or provider fault the error is classified ProviderTransient
// so internal/retry and the Conversation SM's fallback can act on it.
func (l *LLM) Generate(ctx context.Context, systemPrompt string, history []models.Message, userMessage string, maxTokens int, temperature float64) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: mapRole(m.Role), Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage})

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	})
	if err != nil {
		return "", apperr.Wrap(apperr.ProviderTransient, "llm_generate_failed", "llm generation failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.ProviderTransient, "llm_empty_response", "llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func mapRole(r models.Role) string {
	switch r {
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
