package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlecAivazis/survey/v2"

	"github.com/alejandrodnm/sniperbot/config"
	"github.com/alejandrodnm/sniperbot/internal/adapters/llm"
	"github.com/alejandrodnm/sniperbot/internal/adapters/notify"
	"github.com/alejandrodnm/sniperbot/internal/adapters/storage"
	"github.com/alejandrodnm/sniperbot/internal/adapters/yahoo"
	"github.com/alejandrodnm/sniperbot/internal/calendar"
	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/engine"
	"github.com/alejandrodnm/sniperbot/internal/ports"
	"github.com/alejandrodnm/sniperbot/internal/risk"
	sig "github.com/alejandrodnm/sniperbot/internal/signal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one scan cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full signal/book tables (default: compact 1-line)")
	interactive := flag.Bool("interactive", false, "pick the symbols to watch before starting")
	seedNews := flag.Bool("seed-news", false, "seed sample news if the news store is empty (demo mode)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if *interactive {
		if err := pickSymbols(cfg); err != nil {
			slog.Error("interactive setup aborted", "err", err)
			os.Exit(1)
		}
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	slog.Info("sniperbot starting",
		"config", *configPath,
		"symbols", cfg.Symbols.Watch,
		"provider", cfg.LLM.Provider,
		"interval", cfg.ScanInterval(),
		"once", *once,
	)

	store, err := storage.NewStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *seedNews {
		if err := store.SeedSampleNews(ctx, cfg.Symbols.Watch); err != nil {
			slog.Warn("failed to seed sample news", "err", err)
		}
	}

	book, err := engine.NewBook(ctx, store, cfg.Risk.VirtualBalance, cfg.Risk.Leverage, slog.Default())
	if err != nil {
		slog.Error("failed to load position book", "err", err)
		os.Exit(1)
	}

	techCfg := sig.DefaultTechnicalConfig()
	techCfg.MinScore = cfg.Filters.TechnicalMinScore
	techCfg.RSIOversold = cfg.Filters.RSIOversold
	techCfg.RSIOverbought = cfg.Filters.RSIOverbought
	techCfg.VolumeMultiplier = cfg.Filters.VolumeMultiplier

	sentCfg := sig.DefaultSentimentConfig()
	sentCfg.Lookback = cfg.NewsLookback()
	sentCfg.MinSentiment = cfg.Filters.MinNewsSentiment
	sentCfg.Impacts = newsImpacts(cfg.Filters.NewsImpacts)

	engCfg := engine.DefaultConfig()
	engCfg.Symbols = cfg.Symbols.Watch
	engCfg.MinConfidence = cfg.LLM.MinConfidence
	engCfg.DisplayFloor = cfg.LLM.DisplayFloor
	engCfg.MaxRetries = cfg.LLM.MaxRetries
	engCfg.RetryDelay = cfg.RetryDelay()
	engCfg.SelfAssessAfterZero = cfg.LLM.SelfAssessAfterZero
	engCfg.Temperature = cfg.LLM.Temperature
	engCfg.VirtualBalance = cfg.Risk.VirtualBalance
	engCfg.RiskPercent = cfg.Risk.RiskPercent
	engCfg.MinLot = cfg.Risk.MinLot
	engCfg.Leverage = cfg.Risk.Leverage
	engCfg.MaxOpenPositions = cfg.Risk.MaxOpenPositions
	engCfg.MaxDailyTrades = cfg.Risk.MaxDailyTrades
	engCfg.CooldownWindow = cfg.CooldownWindow()
	engCfg.PriceTolerance = cfg.Risk.PriceTolerance
	engCfg.ForceCloseAge = cfg.ForceCloseAge()
	engCfg.Passes = cfg.Scan.Passes
	engCfg.PassWait = cfg.PassWait()
	engCfg.Interval = cfg.ScanInterval()
	engCfg.SymbolDelay = cfg.SymbolDelay()
	engCfg.FeedCap = cfg.Scan.FeedCap
	engCfg.StopFile = cfg.Scan.StopFile

	orch := engine.New(engCfg, engine.Deps{
		Market:    yahoo.NewClient(cfg.Symbols.Fallbacks),
		Model:     buildJudge(cfg),
		Calendar:  calendar.NewStatic(),
		Technical: sig.NewTechnical(techCfg),
		Sentiment: sig.NewSentiment(sentCfg, store),
		Validator: risk.NewValidator(risk.Config{
			MinRiskReward: cfg.Risk.MinRiskReward,
			RiskRewardCap: cfg.Risk.RiskRewardCap,
		}),
		Store:    store,
		Book:     book,
		Notifier: notify.NewConsole(*table),
	})

	if *once {
		signals := orch.RunOnce(ctx)
		slog.Info("single pass complete", "signals", len(signals))
		return
	}

	if err := orch.Run(ctx); err != nil {
		slog.Error("scan loop exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("sniperbot stopped cleanly")
}

// buildJudge selecciona el backend de juicio según la config.
func buildJudge(cfg *config.Config) ports.Judge {
	if cfg.LLM.Provider == "gemini" {
		return llm.NewGeminiClient(cfg.LLM.GeminiModel, cfg.LLM.GeminiAPIKey,
			cfg.LLM.TopP, cfg.LLM.MaxTokens, cfg.LLMTimeout())
	}
	return llm.NewOllamaClient(cfg.LLM.OllamaHost, cfg.LLM.OllamaModel,
		cfg.LLM.TopP, cfg.LLM.MaxTokens, cfg.LLMTimeout())
}

// pickSymbols deja elegir el subconjunto de símbolos con un prompt.
func pickSymbols(cfg *config.Config) error {
	var chosen []string
	prompt := &survey.MultiSelect{
		Message: "Symbols to watch this session:",
		Options: cfg.Symbols.Watch,
		Default: cfg.Symbols.Watch,
	}
	if err := survey.AskOne(prompt, &chosen, survey.WithValidator(survey.Required)); err != nil {
		return err
	}
	cfg.Symbols.Watch = chosen
	return nil
}

func newsImpacts(names []string) []domain.NewsImpact {
	if len(names) == 0 {
		return []domain.NewsImpact{domain.ImpactHigh, domain.ImpactMedium}
	}
	out := make([]domain.NewsImpact, 0, len(names))
	for _, n := range names {
		out = append(out, domain.NewsImpact(n))
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
