package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"docuflex/internal/ai"
	"docuflex/internal/aicache"
	"docuflex/internal/app"
	"docuflex/internal/authpw"
	"docuflex/internal/blob"
	"docuflex/internal/config"
	"docuflex/internal/email"
	"docuflex/internal/events"
	"docuflex/internal/export"
	"docuflex/internal/history"
	"docuflex/internal/importer"
	"docuflex/internal/logging"
	"docuflex/internal/search"
	"docuflex/internal/session"
	"docuflex/internal/store"
)

func main() {
	// .env is optional; the real environment wins.
	_ = godotenv.Load()
	cfg := config.Load()

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: cfg.LogOutput}); err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logging.Sync() }()
	logger := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed, err := store.LoadSeed(authpw.Hash)
	if err != nil {
		logger.Fatal("seed load failed", zap.Error(err))
	}
	users := store.NewUserRegistry(seed.Users, authpw.Hash)
	auth := authpw.NewService(users)

	bus := events.NewBroadcaster()
	tree := store.NewTree(seed.Root, store.WithEvents(bus), store.WithLogger(logger.Named("tree")))

	current, ok := users.Get(cfg.DefaultUser)
	if !ok {
		logger.Fatal("default user not in registry", zap.String("user_id", cfg.DefaultUser))
	}
	state := session.New(current, store.RootID)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, cfg.MeiliIndex, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewMemory(), logger)
	searchService.ReindexAll(tree.Snapshot())
	following := searchService.Follow(ctx, tree, bus)

	var payloads blob.Store = blob.NewInline()
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := blob.NewMinio(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
		if err != nil {
			logger.Warn("minio unavailable, keeping payloads inline", zap.Error(err))
		} else {
			payloads = minioStore
		}
	}

	var answers ai.AnswerCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := aicache.NewRedisCache(cfg.RedisURL, cfg.AICacheTTL)
		if err != nil {
			logger.Warn("redis unavailable, answer cache disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			answers = redisCache
		}
	}

	var completer ai.Completer
	if cfg.AnthropicAPIKey != "" {
		anthropicCompleter, err := ai.NewAnthropicCompleter(cfg.AnthropicAPIKey, cfg.SearchModel)
		if err != nil {
			logger.Warn("semantic search disabled", zap.Error(err))
		} else {
			completer = anthropicCompleter
		}
	}

	recorder, err := history.New(logger)
	if err != nil {
		logger.Fatal("history repository failed", zap.Error(err))
	}

	service := app.New(cfg, app.Deps{
		Tree:    tree,
		Users:   users,
		Session: state,
		Auth:    auth,
		Downloader: importer.SimulatedDownloader{
			MinLatency:  cfg.ImportMinLatency,
			MaxLatency:  cfg.ImportMaxLatency,
			SuccessRate: cfg.ImportSuccessRate,
		},
		Import: importer.Options{Stagger: cfg.ImportStagger},
		Search: searchService,
		AI:     ai.NewSearcher(completer, answers, logger),
		Video: ai.NewVideoGenerator(ai.VideoConfig{
			APIKey:       cfg.GeminiAPIKey,
			BaseURL:      cfg.GeminiBaseURL,
			Model:        cfg.VideoModel,
			PollInterval: cfg.VideoPoll,
		}, logger),
		Blob: payloads,
		Export: export.NewService(export.Config{
			AppName:    cfg.AppName,
			ChromePath: cfg.ChromePath,
			PandocPath: cfg.PandocPath,
			Timeout:    30 * time.Second,
		}, logger),
		Email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, logger),
		History: recorder,
	}, logger)

	if err := service.RecordBaseline(); err != nil {
		logger.Warn("history baseline failed", zap.Error(err))
	}

	logger.Info("docuflex ready",
		zap.String("user", current.Name),
		zap.String("search", searchService.Backend()),
		zap.String("blob", payloads.Type()),
		zap.Int("items", store.Count(tree.Snapshot())),
	)
	fmt.Fprintf(os.Stdout, "%s ready. Type help for commands.\n", cfg.AppName)

	shell := app.NewShell(service, os.Stdin, os.Stdout, logger)
	if err := shell.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("shell stopped", zap.Error(err))
	}

	stop()
	<-following
}
