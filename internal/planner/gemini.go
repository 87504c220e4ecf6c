package planner

import (
	"context"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Model is the text generation backend the planner talks to.
type Model interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Chat(ctx context.Context, system string, history []Message, message string) (string, error)
}

// GeminiModel calls Google Gemini through the generative-ai-go SDK
type GeminiModel struct {
	client    *genai.Client
	modelName string
}

// NewGeminiModel creates a Gemini backed model
func NewGeminiModel(ctx context.Context, apiKey, modelName string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiModel{client: client, modelName: modelName}, nil
}

// Close releases the underlying client
func (g *GeminiModel) Close() error {
	return g.client.Close()
}

func (g *GeminiModel) model(system string) *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	return m
}

func (g *GeminiModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.model(system).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate error: %w", err)
	}
	return responseText(resp), nil
}

func (g *GeminiModel) Chat(ctx context.Context, system string, history []Message, message string) (string, error) {
	cs := g.model(system).StartChat()
	for _, h := range history {
		cs.History = append(cs.History, &genai.Content{
			Role:  h.Role,
			Parts: []genai.Part{genai.Text(h.Text)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini chat error: %w", err)
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			sb.WriteString(string(textPart))
		}
	}
	return sb.String()
}
