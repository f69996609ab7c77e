package analysis

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexClient analyzes transcripts with a Gemini model on Vertex AI.
type VertexClient struct {
	model  *genai.GenerativeModel
	client *genai.Client
}

func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("analysis: vertex project and region are required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemPrompt)}}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	}
	return &VertexClient{model: model, client: client}, nil
}

func (c *VertexClient) Analyze(ctx context.Context, text string) (Result, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return Result{}, &ServiceError{Provider: "vertex", Err: err}
	}
	return Parse(responseText(resp))
}

func (c *VertexClient) Close() error {
	return c.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
