package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sony/gobreaker"

	"jobpipeline/internal/models"
	"jobpipeline/internal/pipelineerr"
)

// AnthropicGateway is the concrete Gateway implementation behind the
// opaque "classify one posting" RPC (spec §1: "the LLM provider itself
// ...treated as an opaque RPC with a cost accounting side-channel").
// Retry is bounded and never applied to schema_violation, matching the
// teacher's CallOllama retry discipline (importer/internal/llm/llm.go).
type AnthropicGateway struct {
	client  anthropic.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	maxRetries int
}

// NewAnthropicGateway builds a Gateway wrapping the Anthropic SDK client,
// circuit-broken the way jordigilh-kubernaut wraps its own LLM calls:
// trip after repeated transport failures so a flaky provider doesn't
// stall the whole sweep (spec §7 #2/#4).
func NewAnthropicGateway(apiKey, model string) *AnthropicGateway {
	client := anthropic.NewClient(anthropic.WithAPIKey(apiKey))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "anthropic-classifier",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &AnthropicGateway{
		client:     client,
		model:      model,
		breaker:    breaker,
		maxRetries: 1,
	}
}

func (g *AnthropicGateway) Classify(ctx context.Context, rawText string, input StructuredInput, sourceTag string) (models.Classification, *pipelineerr.Error) {
	if gateErr := gateContentLength(rawText, input, input.Company); gateErr != nil {
		return models.Classification{}, gateErr
	}

	started := time.Now()

	var responseText string
	var inputTokens, outputTokens int64

	callOnce := func() error {
		result, err := g.breaker.Execute(func() (any, error) {
			return g.client.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     anthropic.Model(g.model),
				MaxTokens: 1024,
				System: []anthropic.TextBlockParam{
					{Text: buildSystemPrompt()},
				},
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(rawText, input, sourceTag))),
				},
			})
		})
		if err != nil {
			return err
		}

		msg, ok := result.(*anthropic.Message)
		if !ok || len(msg.Content) == 0 {
			return errors.New("empty response from classifier")
		}

		responseText = msg.Content[0].Text
		inputTokens = msg.Usage.InputTokens
		outputTokens = msg.Usage.OutputTokens
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(2 * time.Second * time.Duration(attempt))
		}
		lastErr = callOnce()
		if lastErr == nil {
			break
		}
		if !isRetryableTransportError(lastErr) {
			break
		}
	}

	cost := models.CostMeta{
		InputTokens:  int(inputTokens),
		OutputTokens: int(outputTokens),
		CostUSD:      estimateCostUSD(inputTokens, outputTokens, g.model),
		LatencyMS:    time.Since(started).Milliseconds(),
		Provider:     "anthropic",
		Model:        g.model,
	}

	if lastErr != nil {
		return models.Classification{Cost: cost}, pipelineerr.New(pipelineerr.TransportError, input.Company, lastErr)
	}

	parsed, _, parseErr := ParseResponse(responseText)
	if parseErr != nil {
		return models.Classification{Cost: cost}, pipelineerr.New(pipelineerr.ClassifyError, input.Company, fmt.Errorf("invalid_json: %w", parseErr))
	}

	if validationErr := validate.Struct(parsed); validationErr != nil {
		return models.Classification{Cost: cost}, pipelineerr.New(pipelineerr.ClassifyError, input.Company, fmt.Errorf("schema_violation: %w", validationErr))
	}

	return toModelClassification(parsed, cost), nil
}

func isRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false // breaker is open; retrying now would just trip it harder
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	return true // unknown transport error: connection reset, timeout, etc.
}

// estimateCostUSD applies published per-token pricing; figures are a
// config constant candidate, kept inline here because they change with
// the model string itself rather than per-deployment.
func estimateCostUSD(inputTokens, outputTokens int64, model string) float64 {
	const inputPerMillion = 0.80
	const outputPerMillion = 4.00
	return float64(inputTokens)/1_000_000*inputPerMillion + float64(outputTokens)/1_000_000*outputPerMillion
}
