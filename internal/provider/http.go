package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/inkwell-ai/inkwell/internal/cancel"
	"github.com/inkwell-ai/inkwell/internal/logging"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

const (
	// DefaultMaxAttempts is the total request budget per invocation,
	// including the first attempt.
	DefaultMaxAttempts = 3
	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultReadTimeout bounds the gap between successive body reads.
	DefaultReadTimeout = 45 * time.Second

	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = 500 * time.Millisecond
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 4 * time.Second

	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	MaxAttempts    int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// HTTPProvider streams completions from an OpenAI-compatible chat endpoint.
// Transient upstream failures (connect errors, read timeouts, 5xx, 429) are
// retried with jittered exponential backoff up to the attempt budget; other
// 4xx responses fail immediately with a non-retryable error event.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPProvider creates a provider for the given endpoint.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	return &HTTPProvider{
		cfg: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				ResponseHeaderTimeout: cfg.ReadTimeout,
			},
		},
		log: logging.For("provider.http"),
	}
}

// newRetryBackoff creates the jittered exponential backoff used between
// attempts. Jitter prevents synchronized retries across sessions.
func newRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Stream implements Provider.
func (p *HTTPProvider) Stream(ctx context.Context, req Request, tok *cancel.Token) <-chan Event {
	out := make(chan Event)
	go p.run(ctx, req, tok, out)
	return out
}

func (p *HTTPProvider) run(ctx context.Context, req Request, tok *cancel.Token, out chan<- Event) {
	defer close(out)

	bo := newRetryBackoff()
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if tok.Cancelled() || ctx.Err() != nil {
			return
		}

		if attempt > 0 {
			p.log.Debug().Int("attempt", attempt+1).Err(lastErr).Msg("retrying upstream request")
			select {
			case <-time.After(bo.NextBackOff()):
			case <-tok.Done():
				return
			case <-ctx.Done():
				return
			}
		}

		emitted, err := p.attempt(ctx, req, tok, out)
		if err == nil {
			// Terminal event emitted, or the token was tripped and the
			// sequence stops quietly. Either way this invocation is over.
			return
		}
		if tok.Cancelled() || ctx.Err() != nil {
			return
		}

		if emitted {
			// Content already surfaced; re-requesting would duplicate it, so
			// a mid-stream failure is terminal even though it is retryable
			// in nature.
			p.emit(ctx, tok, out, Error(err.Error(), "network", true))
			return
		}

		lastErr = err
	}

	p.log.Warn().Err(lastErr).Int("attempts", p.cfg.MaxAttempts).Msg("upstream retries exhausted")
	p.emit(ctx, tok, out, Error(fmt.Sprintf("upstream unavailable: %v", lastErr), "network", true))
}

// attempt performs one upstream request. It returns a non-nil error only for
// retryable transport failures that produced no terminal event. A nil error
// means the sequence finished: a terminal was emitted, or cancellation
// stopped it quietly.
func (p *HTTPProvider) attempt(ctx context.Context, req Request, tok *cancel.Token, out chan<- Event) (emitted bool, err error) {
	reqCtx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()

	// Unblock the body read promptly when the token trips.
	go func() {
		select {
		case <-tok.Done():
			cancelReq()
		case <-reqCtx.Done():
		}
	}()

	body, err := json.Marshal(p.buildBody(req))
	if err != nil {
		p.emit(ctx, tok, out, Error(fmt.Sprintf("encode request: %v", err), "internal", false))
		return false, nil
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		p.emit(ctx, tok, out, Error(fmt.Sprintf("build request: %v", err), "internal", false))
		return false, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return false, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		p.emit(ctx, tok, out, Error(
			fmt.Sprintf("upstream rejected request: status %d", resp.StatusCode),
			fmt.Sprintf("http_%d", resp.StatusCode),
			false,
		))
		return false, nil
	}

	// Watchdog: a stalled body read cancels the request after ReadTimeout.
	var timedOut atomic.Bool
	watchdog := time.AfterFunc(p.cfg.ReadTimeout, func() {
		timedOut.Store(true)
		cancelReq()
	})
	defer watchdog.Stop()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		watchdog.Reset(p.cfg.ReadTimeout)

		if tok.Cancelled() {
			return emitted, nil
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))

		if payload == doneSentinel {
			p.emit(ctx, tok, out, Done())
			return emitted, nil
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Malformed payload lines are never fatal.
			p.log.Debug().Str("payload", payload).Msg("skipping malformed stream line")
			continue
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if !p.emit(ctx, tok, out, Delta(choice.Delta.Content)) {
					return emitted, nil
				}
				emitted = true
			}
		}
		if chunk.Usage != nil {
			if !p.emit(ctx, tok, out, UsageEvent(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens, chunk.Usage.TotalTokens)) {
				return emitted, nil
			}
		}
	}

	if scanErr := scanner.Err(); scanErr != nil {
		if tok.Cancelled() || (ctx.Err() != nil && !timedOut.Load()) {
			return emitted, nil
		}
		if timedOut.Load() {
			return emitted, fmt.Errorf("read timeout after %s", p.cfg.ReadTimeout)
		}
		return emitted, fmt.Errorf("read stream: %w", scanErr)
	}

	// Body ended without an explicit terminator; treat as success.
	p.emit(ctx, tok, out, Done())
	return emitted, nil
}

// emit delivers an event unless the sequence has been abandoned.
func (p *HTTPProvider) emit(ctx context.Context, tok *cancel.Token, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-tok.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// chatRequest is the upstream request body.
type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	Temperature   float64       `json:"temperature,omitempty"`
	MaxTokens     int           `json:"max_tokens,omitempty"`
	Stop          []string      `json:"stop,omitempty"`
	Stream        bool          `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *HTTPProvider) buildBody(req Request) chatRequest {
	model := req.Settings.Model
	if model == "" {
		model = p.cfg.Model
	}

	var messages []chatMessage
	if system := buildSystemMessage(req.Context); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Settings.Temperature,
		MaxTokens:   req.Settings.MaxTokens,
		Stop:        req.Settings.Stop,
		Stream:      true,
	}
	body.StreamOptions.IncludeUsage = true
	return body
}

func buildSystemMessage(gc types.GenerationContext) string {
	var b strings.Builder
	if gc.SystemPrompt != "" {
		b.WriteString(gc.SystemPrompt)
	}
	if len(gc.Personas) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Characters:\n")
		for _, persona := range gc.Personas {
			b.WriteString("- ")
			b.WriteString(persona)
			b.WriteString("\n")
		}
	}
	if len(gc.ChapterTitles) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Chapters so far: ")
		b.WriteString(strings.Join(gc.ChapterTitles, ", "))
	}
	return b.String()
}

// chatChunk is one parsed stream payload. Unknown fields are ignored.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
