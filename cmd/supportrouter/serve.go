package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "github.com/tbourn/support-router/docs"
	"github.com/tbourn/support-router/internal/channels"
	"github.com/tbourn/support-router/internal/config"
	"github.com/tbourn/support-router/internal/generator"
	httpapi "github.com/tbourn/support-router/internal/http"
	"github.com/tbourn/support-router/internal/notify"
	"github.com/tbourn/support-router/internal/observability"
	"github.com/tbourn/support-router/internal/ratelimit"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/resilience"
	"github.com/tbourn/support-router/internal/rules"
	"github.com/tbourn/support-router/internal/search"
)

const (
	shutdownTimeout  = 20 * time.Second
	memoryCounterMax = 100_000
	janitorInterval  = time.Minute
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// serve runs the service until ctx is done, then drains in-flight work.
func serve(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	db, err := repo.OpenDB(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	holder, err := loadRules(ctx, cfg.RulesPath, cfg.RulesWatch)
	if err != nil {
		return err
	}
	gen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	alerts, closeAlerts, err := buildNotifier(ctx, cfg.Notify)
	if err != nil {
		return err
	}

	hub := channels.NewHub()
	registry := buildChannels(cfg.Channels, hub)

	g, gctx := errgroup.WithContext(ctx)

	var counter ratelimit.Counter
	switch cfg.Rate.Counter {
	case "sql":
		sc := ratelimit.NewSQLCounter(db)
		g.Go(func() error { sc.Janitor(gctx, janitorInterval); return nil })
		counter = sc
	default:
		mc, err := ratelimit.NewMemoryCounter(memoryCounterMax)
		if err != nil {
			return err
		}
		defer mc.Close()
		counter = mc
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	h := httpapi.RegisterRoutes(r, cfg, httpapi.Deps{
		DB:        db,
		Rules:     holder,
		Generator: gen,
		Alerts:    alerts,
		Channels:  registry,
		Hub:       hub,
		Counter:   counter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("generator", cfg.Generator.Backend).
			Strs("channels", registry.Names()).
			Int("notifiers", alerts.Len()).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		if err := h.Wait(sctx); err != nil {
			log.Warn().Err(err).Msg("webhook turns still running at shutdown")
		}
		closeAlerts(sctx)
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		return nil
	})

	return g.Wait()
}

// loadRules returns a holder serving the built-in ladder, or the file at path
// when set. With watch, edits to the file are picked up until ctx is done.
func loadRules(ctx context.Context, path string, watch bool) (*rules.Holder, error) {
	holder := rules.NewHolder(nil)
	if path == "" {
		return holder, nil
	}
	if err := holder.Reload(path); err != nil {
		return nil, err
	}
	if watch {
		if err := holder.Watch(ctx, path); err != nil {
			return nil, err
		}
	}
	log.Info().Str("path", path).Bool("watch", watch).Int("rules", len(holder.Engine().Rules())).Msg("rules loaded")
	return holder, nil
}

// buildGenerator constructs the configured backend behind a timeout and a
// circuit breaker.
func buildGenerator(ctx context.Context, cfg config.Config) (generator.Generator, error) {
	opts := generator.Options{
		Backend:   cfg.Generator.Backend,
		Model:     cfg.Generator.Model,
		APIKey:    cfg.Generator.APIKey,
		BaseURL:   cfg.Generator.BaseURL,
		Threshold: cfg.Generator.RetrievalMinimum,
	}
	if opts.Backend == "" || opts.Backend == generator.BackendRetrieval {
		idx, err := search.NewIndexFromMarkdown(cfg.DataPath,
			search.WithMaxDocs(cfg.Generator.KnowledgeMaxDocs),
			search.WithMinParagraphRunes(cfg.Generator.KnowledgeMinRunes),
			search.WithStopwords(cfg.Generator.KnowledgeStopwords),
		)
		if err != nil {
			// The retrieval generator declines every question without an
			// index, which routes customers to the fallback text.
			log.Warn().Err(err).Str("path", cfg.DataPath).Msg("knowledge index unavailable")
		} else {
			log.Info().Str("path", cfg.DataPath).Int("passages", idx.Len()).Msg("knowledge indexed")
			opts.Index = idx
		}
	}

	gen, err := generator.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	breaker := resilience.NewBreaker(cfg.Generator.BreakerFailures, cfg.Generator.BreakerCooldown)
	return generator.NewGuarded(gen, cfg.Generator.Timeout, breaker), nil
}

// buildNotifier wires every configured escalation destination. With none
// configured, alerts go to the log.
func buildNotifier(ctx context.Context, cfg config.NotifyConfig) (*notify.Dispatcher, func(context.Context), error) {
	var ns []notify.Notifier
	if cfg.SlackURL != "" {
		ns = append(ns, notify.NewSlack(cfg.SlackURL))
	}
	if cfg.DiscordURL != "" {
		ns = append(ns, notify.NewDiscord(cfg.DiscordURL))
	}
	var nc *notify.NATS
	if cfg.NATSURL != "" {
		var err error
		nc, err = notify.ConnectNATS(ctx, cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, nil, err
		}
		ns = append(ns, nc)
	}
	if len(ns) == 0 {
		ns = append(ns, &notify.Log{})
	}

	d := notify.NewDispatcher(cfg.Timeout, ns...)
	closeFn := func(ctx context.Context) {
		if err := d.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("alerts still pending at shutdown")
		}
		if nc != nil {
			nc.Close()
		}
	}
	return d, closeFn, nil
}

// buildChannels registers the web widget plus every channel with credentials.
func buildChannels(cfg config.ChannelsConfig, hub *channels.Hub) *channels.Registry {
	adapters := []channels.Adapter{channels.NewWeb(hub)}
	if cfg.LineSecret != "" {
		adapters = append(adapters, channels.NewLine(cfg.LineSecret, cfg.LineAccessToken, cfg.LineBaseURL))
	}
	if cfg.MessengerAppSecret != "" {
		adapters = append(adapters, channels.NewMessenger(
			cfg.MessengerAppSecret, cfg.MessengerPageToken, cfg.MessengerVerifyToken, cfg.MessengerBaseURL,
		))
	}
	return channels.NewRegistry(adapters...)
}
