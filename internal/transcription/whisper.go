package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Client converts recorded audio to text.
type Client interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (Result, error)
}

type Result struct {
	Text string
}

// ServiceError wraps any failure of the speech-to-text service, including an empty transcript.
type ServiceError struct {
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcription: service returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transcription: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

var errEmptyTranscript = errors.New("empty transcript")

type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// WhisperClient calls the OpenAI audio transcription endpoint.
// SDK retries are disabled; callers retry through utils.WithRetry.
type WhisperClient struct {
	client   openai.Client
	model    string
	language string
}

func NewWhisperClient(cfg Config, opts ...option.RequestOption) *WhisperClient {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.Timeout))
	}
	return &WhisperClient{
		client:   openai.NewClient(append(base, opts...)...),
		model:    cfg.Model,
		language: cfg.Language,
	}
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio io.Reader, filename string) (Result, error) {
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           openai.File(audio, filename, contentType(filename)),
		Model:          openai.AudioModel(c.model),
		Language:       openai.String(c.language),
		Temperature:    openai.Float(0.2),
		ResponseFormat: openai.AudioResponseFormatJSON,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Result{}, &ServiceError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return Result{}, &ServiceError{Err: err}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{}, &ServiceError{Err: errEmptyTranscript}
	}
	return Result{Text: text}, nil
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "audio/mpeg"
}
