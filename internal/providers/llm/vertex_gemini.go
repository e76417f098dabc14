package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Generate(ctx context.Context, req Request) (string, error) {
	// GenerativeModel carries per-call config, so build a fresh one for each request.
	m := v.client.GenerativeModel(v.modelName)
	if req.System != "" {
		m.SystemInstruction = &vertexgenai.Content{
			Parts: []vertexgenai.Part{vertexgenai.Text(req.System)},
		}
	}
	if req.JSON {
		m.ResponseMIMEType = "application/json"
	}
	if req.Temperature > 0 {
		m.SetTemperature(req.Temperature)
	}

	resp, err := m.GenerateContent(ctx, vertexgenai.Text(req.Prompt))
	if err != nil {
		return "", Classify(err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			break
		}
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmpty
	}
	return b.String(), nil
}
