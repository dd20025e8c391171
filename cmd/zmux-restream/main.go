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

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/edirooss/zmux-restream/internal/config"
	"github.com/edirooss/zmux-restream/internal/engine"
	"github.com/edirooss/zmux-restream/internal/events"
	"github.com/edirooss/zmux-restream/internal/http/handler"
	mw "github.com/edirooss/zmux-restream/internal/http/middleware"
	"github.com/edirooss/zmux-restream/internal/repo"
	"github.com/edirooss/zmux-restream/internal/restreamer"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:           "zmux-restream",
		Short:         "Channel orchestration server for multi-platform restreaming",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Printf("zmux-restream %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
				return nil
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, os.Getenv("ENV") == "dev")
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print version and exit")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, isDev bool) error {
	log := buildLogger()
	defer log.Sync()
	log = log.Named("main")

	// Storage
	rdb := repo.NewRedisClient(log, repo.RedisOptions{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx); err != nil {
		rdb.Close()
		return fmt.Errorf("redis: %w", err)
	}
	store := repo.NewRepository(log, rdb)
	defer store.Close()

	// Events
	var pub events.Publisher = events.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		mp, err := events.NewMQTTPublisher(log, events.MQTTConfig{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			PublishTimeout: cfg.MQTT.PublishTimeout,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		pub = mp
	}
	defer pub.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := engine.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Remote process service; optional
	var client restreamer.Client
	if cfg.Restreamer.BaseURL != "" {
		hc, err := restreamer.NewHTTPClient(log, restreamer.Config{
			BaseURL:       cfg.Restreamer.BaseURL,
			Username:      cfg.Restreamer.Username,
			Password:      cfg.Restreamer.Password,
			Timeout:       cfg.Restreamer.Timeout,
			RetryAttempts: cfg.Restreamer.RetryAttempts,
			RetryInterval: cfg.Restreamer.RetryInterval,
			CacheTTL:      cfg.Restreamer.CacheTTL,
			LoginRate:     rate.Limit(cfg.Restreamer.LoginRate),
		})
		if err != nil {
			return fmt.Errorf("restreamer client: %w", err)
		}
		client = hc
	} else {
		log.Warn("restreamer base_url not set; lifecycle operations will fail until configured")
	}

	opts := []engine.Option{
		engine.WithStore(store),
		engine.WithPublisher(pub),
		engine.WithMetrics(metrics),
		engine.WithParallelism(cfg.Engine.Parallelism),
	}
	if cfg.Engine.FailFast {
		opts = append(opts, engine.WithFailFast())
	}
	mgr := engine.NewManager(log, client, opts...)
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load channels: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
		defer cancel()
		if err := mgr.Close(sctx); err != nil {
			log.Warn("manager close", zap.Error(err))
		}
	}()

	if cfg.Engine.AutoStart && client != nil {
		if err := mgr.StartAutoStart(ctx); err != nil {
			log.Warn("auto-start", zap.Error(err))
		}
	}

	monCtx, cancelMon := context.WithCancel(ctx)
	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		if err := engine.NewMonitor(log, mgr, cfg.Engine.MonitorTick).Run(monCtx); err != nil {
			log.Error("monitor stopped", zap.Error(err))
		}
	}()
	defer func() {
		cancelMon()
		<-monDone
	}()

	summary := engine.NewSummary(log, mgr, engine.SummaryOptions{
		TTL:               cfg.Summary.TTL,
		RefreshTimeout:    cfg.Summary.RefreshTimeout,
		AllowStaleOnError: cfg.Summary.AllowStaleOnError,
	})

	// Create Gin router
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer()
	r := gin.New()
	{
		r.Use(gin.Recovery()) // outermost
		r.Use(mw.RequestID())

		if isDev { // local UI dev servers
			r.Use(cors.New(cors.Config{
				AllowOrigins:  []string{"http://localhost:5173", "http://localhost:4173", "http://localhost:3000", "http://127.0.0.1:3000"},
				AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowHeaders:  []string{"X-Request-ID", "Content-Type"},
				ExposeHeaders: []string{"X-Request-ID", "X-Total-Count", "X-Active-Count", "X-Cache", "X-Summary-Generated-At", "Location"},
				MaxAge:        12 * time.Hour,
			}))
		} else { // behind a TLS-terminating proxy
			if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
				return fmt.Errorf("trusted proxies: %w", err)
			}
			r.Use(secure.New(secure.Config{
				SSLProxyHeaders: map[string]string{
					"X-Forwarded-Proto": "https",
				},
				ContentTypeNosniff: true,
				FrameDeny:          true,
			}))
		}

		r.Use(mw.AccessLog(log.Named("http")))

		r.Use(func(c *gin.Context) {
			// hard 10MB cap on request bodies
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 10<<20)
			c.Next()
		})
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	api := r.Group("")
	if cfg.MaxConcurrentRequests > 0 {
		api.Use(mw.LimitConcurrentRequests(cfg.MaxConcurrentRequests))
	}
	handler.Register(api, log, mgr, summary)

	httpsrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           r,
		ReadHeaderTimeout: 2 * time.Second,  // kills header-drip Slowloris
		ReadTimeout:       10 * time.Second, // full request read (incl. body)
		WriteTimeout:      30 * time.Second, // bulk operations fan out to the remote service
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("running HTTP server", zap.String("addr", httpsrv.Addr))
		if err := httpsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
	defer cancel()
	if err := httpsrv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("server closed")
	return nil
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
