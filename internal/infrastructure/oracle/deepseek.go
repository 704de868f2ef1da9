package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/krejcif/llmtrader/internal/domain"
)

const (
	DeepSeekBaseURL = "https://api.deepseek.com"
	deepSeekModel   = "deepseek-chat"
)

const systemPrompt = `You are a technical analyst for perpetual futures. ` +
	`Given the market summary, reply with a single JSON object and nothing else: ` +
	`{"action": "LONG"|"SHORT"|"NEUTRAL", "confidence": "low"|"medium"|"high", "rationale": "<one sentence>"}`

// DeepSeekOracle calls the DeepSeek chat-completions endpoint and parses
// the reply into a recommendation. Anything that does not parse into one of
// the three actions is an error, never a NEUTRAL signal.
type DeepSeekOracle struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewDeepSeekOracle(apiKey, baseURL string) *DeepSeekOracle {
	if baseURL == "" {
		baseURL = DeepSeekBaseURL
	}
	return &DeepSeekOracle{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *DeepSeekOracle) Decide(ctx context.Context, strategy string, summary string) (*domain.Recommendation, error) {
	payload := chatRequest{
		Model: deepSeekModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("strategy: %s\n%s", strategy, summary)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("oracle API error: %s", string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("malformed oracle response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("oracle error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices")
	}

	return parseDecision(parsed.Choices[0].Message.Content)
}

// parseDecision extracts the JSON decision from the model reply, tolerating
// markdown code fences around it.
func parseDecision(content string) (*domain.Recommendation, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var decision struct {
		Action     string `json:"action"`
		Confidence string `json:"confidence"`
		Rationale  string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return nil, fmt.Errorf("unparseable decision %q: %w", content, err)
	}

	action := domain.Action(strings.ToUpper(strings.TrimSpace(decision.Action)))
	if !action.Valid() {
		return nil, fmt.Errorf("unknown action %q in decision", decision.Action)
	}

	return &domain.Recommendation{
		Action:     action,
		Confidence: decision.Confidence,
		Rationale:  decision.Rationale,
	}, nil
}
