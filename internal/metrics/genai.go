package metrics

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/pkg/errors"
)

const DefaultModel = "gemini-2.0-flash-001"

const promptTemplate = `Estimate reading metrics for the book text below.
Reply with a single JSON object and nothing else:
{"estimatedPages": <int>, "readingTimeMinutes": <int>, "difficulty": "<Beginner|Intermediate|Advanced>"}
The text is %d characters long.
---------------------
%s`

// GenAI asks a Vertex AI model for metrics.
type GenAI struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGenAI connects to Vertex AI. Credentials come from the environment.
func NewGenAI(ctx context.Context, project, location, model string) (*GenAI, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create vertex ai client")
	}

	m := client.GenerativeModel(model)
	m.SetTemperature(0.2)
	m.ResponseMIMEType = "application/json"

	return &GenAI{client: client, model: m}, nil
}

// Close releases the client.
func (g *GenAI) Close() error {
	return g.client.Close()
}

// Estimate sends the full text and its length to the model.
func (g *GenAI) Estimate(ctx context.Context, text string, length int) (*Metrics, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(promptTemplate, length, text)))
	if err != nil {
		return nil, errors.Wrap(err, "gemini call failed")
	}
	return Parse(responseText(resp))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
