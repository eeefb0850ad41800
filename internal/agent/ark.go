package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/chatframe-ai/chatframe/internal/logging"
)

const (
	defaultMaxTokens = 4096
	// historyLimit caps the rolling conversation window, in messages.
	historyLimit = 40

	// retryInitialInterval is the initial interval for exponential backoff.
	retryInitialInterval = time.Second
	// retryMaxInterval is the maximum interval for exponential backoff.
	retryMaxInterval = 30 * time.Second
	// maxRetries is the maximum number of retries for stream creation.
	maxRetries = 3
)

// defaultSystemPrompt frames the assistant as the Shop Floor Connectivity
// configuration wizard.
const defaultSystemPrompt = "You are the SFC Wizard, a specialized assistant for creating, " +
	"validating and running SFC (Shop Floor Connectivity) configurations. " +
	"Explain your reasoning and cite sources when possible."

// ArkConfig holds configuration for the ARK-backed agent.
type ArkConfig struct {
	APIKey       string
	BaseURL      string
	Model        string // Endpoint ID on ARK platform
	MaxTokens    int
	SystemPrompt string
}

// ArkAgent answers through a Volcengine ARK chat model behind an Eino chain.
// It keeps a rolling conversation window so follow-up questions retain
// context across turns.
type ArkAgent struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	system string

	mu      sync.Mutex
	history []*schema.Message
}

// NewArkAgent creates an agent backed by the ARK model named in config,
// falling back to ARK_* environment variables for unset fields.
func NewArkAgent(ctx context.Context, config *ArkConfig) (*ArkAgent, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ARK_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ARK_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("ARK_MODEL")
	}
	if modelID == "" {
		return nil, fmt.Errorf("ARK_MODEL not set")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("ARK_BASE_URL")
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	cfg := &ark.ChatModelConfig{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: &maxTokens,
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ARK model: %w", err)
	}

	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(template).
		AppendChatModel(chatModel).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chain: %w", err)
	}

	system := config.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	return &ArkAgent{chain: chain, system: system}, nil
}

// Invoke sends message through the chain and streams chunks to output as
// they arrive. Stream creation is retried with exponential backoff; once any
// content has been forwarded the call is never retried, so downstream
// consumers cannot observe duplicated output.
func (a *ArkAgent) Invoke(ctx context.Context, message string, output io.Writer) (string, error) {
	input := map[string]any{
		"system":  a.system,
		"history": a.snapshotHistory(),
		"query":   message,
	}

	retry := newRetryBackoff(ctx)
	var reply string
	for {
		text, wrote, err := a.streamOnce(ctx, input, output)
		if err == nil {
			reply = text
			break
		}
		if wrote {
			return "", &InvocationError{Err: err}
		}
		next := retry.NextBackOff()
		if next == backoff.Stop {
			return "", &InvocationError{Err: err}
		}
		logging.Warn().Err(err).Dur("retry_in", next).Msg("ARK stream failed, retrying")
		time.Sleep(next)
	}

	a.remember(message, reply)
	return reply, nil
}

// streamOnce runs a single streaming pass. wrote reports whether any chunk
// reached output before the error, which makes the attempt unretryable.
func (a *ArkAgent) streamOnce(ctx context.Context, input map[string]any, output io.Writer) (reply string, wrote bool, err error) {
	stream, err := a.chain.Stream(ctx, input)
	if err != nil {
		return "", false, fmt.Errorf("failed to create stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", sb.Len() > 0, fmt.Errorf("stream receive failed: %w", err)
		}
		if chunk.Content == "" {
			continue
		}
		sb.WriteString(chunk.Content)
		if output != nil {
			if _, werr := io.WriteString(output, chunk.Content); werr != nil {
				return "", true, fmt.Errorf("failed to forward chunk: %w", werr)
			}
		}
	}
	return sb.String(), sb.Len() > 0, nil
}

func (a *ArkAgent) snapshotHistory() []*schema.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*schema.Message, len(a.history))
	copy(out, a.history)
	return out
}

// remember appends the exchange and trims the window from the front.
func (a *ArkAgent) remember(query, reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, schema.UserMessage(query), schema.AssistantMessage(reply, nil))
	if len(a.history) > historyLimit {
		a.history = a.history[len(a.history)-historyLimit:]
	}
}

// newRetryBackoff creates a new exponential backoff with jitter for API
// retries. Uses cenkalti/backoff for context-aware cancellation and jitter
// to avoid thundering herds against the model endpoint.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}
