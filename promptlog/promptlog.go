// Copyright 2025-2026 The RunLog Authors. SPDX-License-Identifier: Apache-2.0

// Package promptlog records LLM text generations in a runlog run.
//
// A Sampler wraps an OpenAI-compatible chat-completion client: every Generate
// call is synchronous, retries transient API failures with jittered
// exponential backoff, appends one table row per returned choice and logs the
// token usage as run metrics.
//
//	sampler := promptlog.New(run,
//		promptlog.WithModel(openai.GPT4oMini),
//		promptlog.WithSamples(3),
//		promptlog.WithMaxAttempts(5))
//	for _, prompt := range prompts {
//		result, err := sampler.Generate(ctx, prompt)
//		...
//	}
//	must.M(sampler.Flush())
package promptlog

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"k8s.io/klog/v2"

	"github.com/runlog/runlog"
)

// Defaults used when the corresponding option is not given.
const (
	DefaultModel       = openai.GPT4oMini
	DefaultMaxAttempts = 5
	DefaultInitialWait = 500 * time.Millisecond
	DefaultMaxWait     = 30 * time.Second

	// DefaultTableName is the run table the generations are appended to.
	DefaultTableName = "generations"

	// EnvAPIKey configures the default client.
	EnvAPIKey = "OPENAI_API_KEY"
)

// ChatCompleter is the slice of the OpenAI client the Sampler uses. It is
// satisfied by *openai.Client; tests substitute fakes.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Sampler generates chat completions and records every prompt/response pair
// in a run table. Not safe for concurrent use.
type Sampler struct {
	run    *runlog.Run
	client ChatCompleter

	model        string
	systemPrompt string
	samples      int
	maxTokens    int
	temperature  float32

	maxAttempts int
	initialWait time.Duration
	maxWait     time.Duration

	table       *runlog.Table
	tableName   string
	generations int
}

// Option configures a Sampler. See the With* functions.
type Option func(*Sampler)

// WithClient sets the chat-completion client. Defaults to an OpenAI client
// authenticated with $OPENAI_API_KEY.
func WithClient(client ChatCompleter) Option {
	return func(s *Sampler) { s.client = client }
}

// WithModel sets the model name requested from the API.
func WithModel(model string) Option {
	return func(s *Sampler) { s.model = model }
}

// WithSystemPrompt prepends a system message to every request.
func WithSystemPrompt(prompt string) Option {
	return func(s *Sampler) { s.systemPrompt = prompt }
}

// WithSamples sets how many choices (the API's N) each Generate requests.
func WithSamples(n int) Option {
	return func(s *Sampler) { s.samples = n }
}

// WithMaxTokens caps the completion length. Zero leaves the API default.
func WithMaxTokens(n int) Option {
	return func(s *Sampler) { s.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Zero leaves the API default.
func WithTemperature(t float32) Option {
	return func(s *Sampler) { s.temperature = t }
}

// WithMaxAttempts caps the API calls per Generate: the first call plus up to
// maxAttempts-1 retries.
func WithMaxAttempts(n int) Option {
	return func(s *Sampler) { s.maxAttempts = n }
}

// WithBackoff sets the initial and maximum wait between retries. Waits grow
// exponentially from initial to max and are randomized (+/- 50%).
func WithBackoff(initial, max time.Duration) Option {
	return func(s *Sampler) {
		s.initialWait = initial
		s.maxWait = max
	}
}

// WithTable sets the run table name the generations are appended to.
func WithTable(name string) Option {
	return func(s *Sampler) { s.tableName = name }
}

// New creates a Sampler recording to the given run.
func New(run *runlog.Run, opts ...Option) *Sampler {
	s := &Sampler{
		run:         run,
		model:       DefaultModel,
		samples:     1,
		maxAttempts: DefaultMaxAttempts,
		initialWait: DefaultInitialWait,
		maxWait:     DefaultMaxWait,
		tableName:   DefaultTableName,
		table: runlog.NewTable("prompt", "response", "choice",
			"prompt_tokens", "completion_tokens", "total_tokens", "created", "elapsed_ms"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = openai.NewClient(os.Getenv(EnvAPIKey))
	}
	return s
}

// Result is one resolved generation.
type Result struct {
	// Choices hold the text of each returned completion, in API order.
	Choices []string

	// Token usage reported by the API, for the whole request.
	PromptTokens, CompletionTokens, TotalTokens int

	// Created is the generation timestamp reported by the API.
	Created time.Time

	// Attempts is how many API calls were made, including the successful one.
	Attempts int

	// Elapsed is the total wall time spent, retries and waits included.
	Elapsed time.Duration
}

// Table returns the accumulated generations table. Call Flush to persist it.
func (s *Sampler) Table() *runlog.Table { return s.table }

// Generate requests completions for one prompt and records them. The call is
// synchronous: it returns after the API succeeded or after all attempts are
// exhausted, never with a pending result.
func (s *Sampler) Generate(ctx context.Context, prompt string) (*Result, error) {
	request := openai.ChatCompletionRequest{
		Model:       s.model,
		N:           s.samples,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
	if s.systemPrompt != "" {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: s.systemPrompt,
		})
	}
	request.Messages = append(request.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	start := time.Now()
	attempts := 0
	var response openai.ChatCompletionResponse
	operation := func() error {
		attempts++
		var err error
		response, err = s.client.CreateChatCompletion(ctx, request)
		return classify(err)
	}
	err := backoff.RetryNotify(operation, s.newBackOff(ctx), func(err error, wait time.Duration) {
		klog.V(1).Infof("promptlog: generation attempt %d failed (retrying in %s): %v", attempts, wait, err)
	})
	elapsed := time.Since(start)
	if err != nil {
		return nil, errors.WithMessagef(err, "generation failed after %d attempts", attempts)
	}

	result := &Result{
		Choices:          make([]string, 0, len(response.Choices)),
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
		Created:          time.Unix(response.Created, 0),
		Attempts:         attempts,
		Elapsed:          elapsed,
	}
	for ii, choice := range response.Choices {
		result.Choices = append(result.Choices, choice.Message.Content)
		err := s.table.Append(prompt, choice.Message.Content, ii,
			response.Usage.PromptTokens, response.Usage.CompletionTokens, response.Usage.TotalTokens,
			response.Created, elapsed.Milliseconds())
		if err != nil {
			return nil, errors.WithMessagef(err, "recording generation for prompt %q", prompt)
		}
	}

	step := s.generations
	s.generations++
	err = s.run.Log(runlog.Record{
		Metric: "Prompt Tokens", Short: "ptok", Kind: "tokens",
		Step: float64(step), Value: float64(response.Usage.PromptTokens),
	})
	if err == nil {
		err = s.run.Log(runlog.Record{
			Metric: "Completion Tokens", Short: "ctok", Kind: "tokens",
			Step: float64(step), Value: float64(response.Usage.CompletionTokens),
		})
	}
	if err == nil {
		err = s.run.Log(runlog.Record{
			Metric: "Total Tokens", Short: "ttok", Kind: "tokens",
			Step: float64(step), Value: float64(response.Usage.TotalTokens),
		})
	}
	if err == nil {
		err = s.run.Log(runlog.Record{
			Metric: "Generation Seconds", Short: "gsec", Kind: runlog.KindGeneric,
			Step: float64(step), Value: elapsed.Seconds(),
		})
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "logging usage metrics for prompt %q", prompt)
	}
	return result, nil
}

// Flush writes the generations table to the run. Call it once after the last
// Generate; generating after a Flush and flushing again overwrites the table
// with the longer version.
func (s *Sampler) Flush() error {
	return s.run.LogTable(s.tableName, s.table)
}

func (s *Sampler) newBackOff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialWait
	bo.MaxInterval = s.maxWait
	bo.MaxElapsedTime = 0 // Attempts are capped by count, not by wall time.
	retries := uint64(0)
	if s.maxAttempts > 1 {
		retries = uint64(s.maxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)
}

// classify splits API failures into retryable and permanent: timeouts, rate
// limits (408, 429) and server errors (5xx) are retried, any other HTTP error
// status and context cancellation are permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		// Transport-level failure, worth retrying.
		return err
	}
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		return err
	}
	return backoff.Permanent(err)
}
