// Package transcribe turns recorded audio into a prompt through the OpenAI
// speech-to-text API.
package transcribe

import (
	"context"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkg/errors"

	"plaichat/internal/api"
	"plaichat/internal/logger"
)

const (
	usageModel    = "OPENAI_WHISPER"
	usageProvider = "OPENAI"
)

// UsageRegistrar records transcription usage with the backend.
type UsageRegistrar interface {
	RegisterTranscription(ctx context.Context, managementKey string, usage api.TranscriptionUsage) error
}

type Config struct {
	APIKey        string
	BaseURL       string
	ManagementKey string
	ProjectID     string
}

type Transcriber struct {
	client openai.Client
	usage  UsageRegistrar
	cfg    Config
	log    *logger.Logger
}

// New builds a transcriber. usage may be nil, in which case usage is not
// reported.
func New(cfg Config, usage UsageRegistrar, log *logger.Logger, opts ...option.RequestOption) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if log == nil {
		log = logger.Discard()
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &Transcriber{
		client: openai.NewClient(clientOpts...),
		usage:  usage,
		cfg:    cfg,
		log:    log.WithComponent("transcribe"),
	}, nil
}

// Transcribe uploads the audio file at path and returns the recognised text.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "opening audio file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "reading audio file")
	}
	if info.Size() == 0 {
		return "", errors.Errorf("audio file %s is empty", path)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		return "", errors.Wrap(err, "Error transcribing audio")
	}

	t.register(ctx, info.Size())
	return strings.TrimSpace(resp.Text), nil
}

func (t *Transcriber) register(ctx context.Context, size int64) {
	if t.usage == nil || t.cfg.ManagementKey == "" {
		return
	}
	err := t.usage.RegisterTranscription(ctx, t.cfg.ManagementKey, api.TranscriptionUsage{
		ProjectID:   t.cfg.ProjectID,
		LLMModel:    usageModel,
		LLMProvider: usageProvider,
		Bytes:       size,
	})
	if err != nil {
		t.log.Warn("failed to register transcription usage", "error", err)
	}
}
