package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"
)

// visionClient wraps an OpenAI-compatible chat endpoint for frame
// scoring. The local adapter points it at an on-box server
// (llama.cpp, LM Studio); the cloud adapter at a hosted API. Both ask
// for a single JSON object and parse it tolerantly.
type visionClient struct {
	client openai.Client
	model  string
	name   string
}

func newVisionClient(name, baseURL, apiKey, model string) *visionClient {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &visionClient{
		client: openai.NewClient(opts...),
		model:  model,
		name:   name,
	}
}

const scoreInstruction = `You rate short video clips for standalone watchability.
Reply with a single JSON object: {"score": <number between 0 and 1>}.
Score high when the frames show a self-contained, visually engaging moment; score low for static filler.`

// scoreFrames sends the sampled frames plus context text and extracts
// the score from the reply. Transport failures come back as
// ModelAdapterError; a syntactically valid reply with a bad score is
// reported as-is for the caller to validate.
func (c *visionClient) scoreFrames(ctx context.Context, contextText string, frames []string) (float64, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(contextText),
	}
	for _, url := range frames {
		parts = append(parts, openai.ImageContentPart(
			openai.ChatCompletionContentPartImageImageURLParam{URL: url},
		))
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(scoreInstruction),
			openai.UserMessage(parts),
		},
		Temperature: openai.Float(0.0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return 0, adapterErr(c.name, err)
	}
	if len(resp.Choices) == 0 {
		return 0, adapterErr(c.name, fmt.Errorf("model returned no choices"))
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if raw == "" {
		return 0, adapterErr(c.name, fmt.Errorf("model returned empty content"))
	}
	return parseScoreReply(raw)
}

// parseScoreReply extracts the score field from a model reply,
// tolerating code fences and surrounding prose.
func parseScoreReply(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	result := gjson.Get(raw, "score")
	if !result.Exists() {
		// Some models wrap the object in prose; find the first object.
		if start := strings.Index(raw, "{"); start >= 0 {
			if end := strings.LastIndex(raw, "}"); end > start {
				result = gjson.Get(raw[start:end+1], "score")
			}
		}
	}
	if !result.Exists() {
		return 0, fmt.Errorf("no score field in model reply: %q", truncate(raw, 120))
	}
	return result.Float(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
