package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultLLMEndpoint = "https://api.anthropic.com"

// LLMProvider asks the Anthropic Messages API for a sentiment value.
type LLMProvider struct {
	Model     string
	MaxTokens int

	apiKey string
	client anthropic.Client
}

// NewLLMProvider builds a provider against endpoint, the API base URL. The
// SDK does not retry: the adapter's timeout is the whole budget of a call.
func NewLLMProvider(endpoint, apiKey, model string, maxTokens int) *LLMProvider {
	if endpoint == "" {
		endpoint = DefaultLLMEndpoint
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &LLMProvider{
		Model:     model,
		MaxTokens: maxTokens,
		apiKey:    apiKey,
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(strings.TrimRight(endpoint, "/")+"/"),
			option.WithMaxRetries(0),
			option.WithRequestTimeout(30*time.Second),
		),
	}
}

func (p *LLMProvider) GetSentiment(ctx context.Context, in Context) (Response, error) {
	if p.apiKey == "" {
		return Response{}, ErrUnavailable
	}
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.Model),
		MaxTokens: int64(p.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(in))),
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm request: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return ParseText(block.Text)
		}
	}
	return Response{}, fmt.Errorf("llm response has no text content")
}

// ParseText accepts a bare number or a JSON object with action, confidence
// and reason, possibly surrounded by prose.
func ParseText(text string) (Response, error) {
	text = strings.TrimSpace(text)
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return Response{Value: &v}, nil
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Response{}, fmt.Errorf("unparsable sentiment %q", truncate(text, 80))
	}
	var r Response
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return Response{}, fmt.Errorf("unparsable sentiment object: %w", err)
	}
	return r, nil
}

// BuildPrompt renders the market context into the instruction sent to the LLM.
func BuildPrompt(in Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assess the market sentiment for %s.\n\n", in.Symbol)
	fmt.Fprintf(&b, "Current data:\n- Price: %.2f\n- Last volume: %.2f\n- Change over window: %.2f%%\n", in.LastPrice, in.LastVolume, in.ChangePercent)
	if in.RSI > 0 {
		fmt.Fprintf(&b, "- RSI(14): %.1f\n", in.RSI)
	}
	if in.ADX > 0 {
		fmt.Fprintf(&b, "- ADX(14): %.1f\n", in.ADX)
	}
	if len(in.RecentSignals) > 0 {
		b.WriteString("\nRecent signals:\n")
		for _, s := range in.RecentSignals {
			fmt.Fprintf(&b, "- %s %s confidence %.2f\n", s.At.UTC().Format(time.RFC3339), s.Action, s.Confidence)
		}
	}
	if len(in.RecentTrades) > 0 {
		b.WriteString("\nRecent trades:\n")
		for _, t := range in.RecentTrades {
			fmt.Fprintf(&b, "- %s %s %.6f @ %.2f\n", t.At.UTC().Format(time.RFC3339), t.Side, t.Qty, t.Price)
		}
	}
	b.WriteString(`
Scale: -1.0 strongly bearish, -0.3 slightly bearish, 0 neutral, 0.3 slightly bullish, 1.0 strongly bullish.
Consider oversold when RSI < 30, overbought when RSI > 70, and a strong trend when ADX > 25.

Reply with ONLY a number between -1 and 1, or a JSON object {"action": "BUY|SELL|HOLD", "confidence": 0..1, "reason": "..."}.`)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
