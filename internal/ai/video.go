package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"docuflex/internal/logging"
	"docuflex/internal/metrics"
)

var (
	ErrNoOperation  = errors.New("expected the model to return an operation")
	ErrVideoMissing = errors.New("failed to find the generated video")
	ErrVideoFetch   = errors.New("failed to fetch video")
)

// VideoConfig configures the Gemini video client. An empty BaseURL uses
// the SDK default endpoint.
type VideoConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	PollInterval    time.Duration
	DurationSeconds int32
	AspectRatio     string
	HTTPClient      *http.Client
}

// VideoGenerator drives a Veo long-running prediction through the genai SDK.
type VideoGenerator struct {
	cfg    VideoConfig
	client *genai.Client
	logger *zap.Logger
}

func NewVideoGenerator(cfg VideoConfig, logger *zap.Logger) *VideoGenerator {
	if cfg.Model == "" {
		cfg.Model = "veo-2.0-generate-001"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.DurationSeconds == 0 {
		cfg.DurationSeconds = 5
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "16:9"
	}
	g := &VideoGenerator{cfg: cfg, logger: logging.OrNop(logger).Named("ai.video")}
	if cfg.APIKey == "" {
		return g
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL, APIVersion: "v1beta"},
	})
	if err != nil {
		g.logger.Warn("gemini client unavailable", zap.Error(err))
		return g
	}
	g.client = client
	return g
}

func (g *VideoGenerator) Available() bool {
	return g != nil && g.client != nil
}

// GenerateVideo renders prompt to a short clip and returns it as a
// data:video/mp4 URI. It blocks until the operation finishes or ctx ends.
func (g *VideoGenerator) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	if !g.Available() {
		return "", ErrUnavailable
	}
	start := time.Now()
	video, err := g.generate(ctx, prompt)
	if err != nil {
		metrics.RecordAIRequest("video", time.Since(start), false)
		g.logger.Error("video generation failed", zap.Error(err))
		return "", err
	}
	data, err := g.client.Files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(video), nil)
	if err == nil && len(data) == 0 {
		err = ErrVideoFetch
	} else if err != nil {
		err = fmt.Errorf("%w: %v", ErrVideoFetch, err)
	}
	metrics.RecordAIRequest("video", time.Since(start), err == nil)
	if err != nil {
		g.logger.Error("video download failed", zap.Error(err))
		return "", err
	}
	return "data:video/mp4;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (g *VideoGenerator) generate(ctx context.Context, prompt string) (*genai.GeneratedVideo, error) {
	op, err := g.client.Models.GenerateVideos(ctx, g.cfg.Model, prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos:  1,
		DurationSeconds: &g.cfg.DurationSeconds,
		AspectRatio:     g.cfg.AspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("start video operation: %w", err)
	}
	if op == nil || op.Name == "" {
		return nil, ErrNoOperation
	}
	g.logger.Info("video operation started", zap.String("operation", op.Name))

	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.cfg.PollInterval):
		}
		if op, err = g.client.Operations.GetVideosOperation(ctx, op, nil); err != nil {
			return nil, fmt.Errorf("poll video operation: %w", err)
		}
	}

	if op.Error != nil {
		return nil, fmt.Errorf("failed to generate video: %v", op.Error["message"])
	}
	if op.Response == nil {
		return nil, ErrVideoMissing
	}
	for _, v := range op.Response.GeneratedVideos {
		if v != nil && v.Video != nil && v.Video.URI != "" {
			return v, nil
		}
	}
	return nil, ErrVideoMissing
}
