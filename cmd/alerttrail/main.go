package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/alerttrail/alerttrail/internal/adapters/mailbox"
	"github.com/alerttrail/alerttrail/internal/adapters/push"
	"github.com/alerttrail/alerttrail/internal/adapters/storage"
	"github.com/alerttrail/alerttrail/internal/application"
	"github.com/alerttrail/alerttrail/internal/config"
	"github.com/alerttrail/alerttrail/internal/domain/mailscan"
	"github.com/alerttrail/alerttrail/internal/logging"
	"github.com/alerttrail/alerttrail/internal/metrics"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file (optional)")
		logFile    = flag.String("logfile", "", "server log file to analyze on startup (optional)")
		logUser    = flag.String("user", "", "user UUID owning the analyzed log file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := logging.New(logging.Config{})
		fallback.Fatal().Err(err).Msg("configuration")
	}

	logger := logging.New(cfg.Log)
	logger.Info().Msg("starting alerttrail")

	// Storage adapter (driven port implementation). It doubles as the
	// eligibility checker since plan data lives in the same database.
	store, err := storage.NewPostgresStore(cfg.Database.URL, cfg.Alerts.DefaultCooldownMinutes)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		logger.Fatal().Err(err).Msg("initialize schema")
	}
	logger.Info().Msg("database ready")

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddr, logger)
	}

	gateway := push.NewWebPushGateway(
		cfg.Push.VAPIDPublicKey,
		cfg.Push.VAPIDPrivateKey,
		cfg.Push.Contact,
		cfg.Push.Timeout,
	)

	dispatcher := application.NewDispatcher(store, gateway, store, logger,
		application.WithMetrics(m),
	)

	scorer := mailscan.NewScorer(cfg.MailScan.SuspiciousTLDs)
	source := mailbox.NewIMAPSource(cfg.MailScan.IMAPTimeout)

	alerts := application.NewAlertService(store, source, scorer, dispatcher, logger, m, cfg.MailScan.MaxMessages)

	ctx := context.Background()

	if *logFile != "" {
		analyzeLogFile(ctx, alerts, *logFile, *logUser, logger)
	}

	if err := alerts.ScanAllAccounts(ctx); err != nil {
		logger.Error().Err(err).Msg("mailbox sweep")
	}

	if err := alerts.ReleaseBacklogs(ctx); err != nil {
		logger.Error().Err(err).Msg("release backlogs")
	}

	logger.Info().Msg("alerttrail run complete")
}

func analyzeLogFile(ctx context.Context, alerts *application.AlertService, path, user string, logger zerolog.Logger) {
	userID, err := uuid.Parse(user)
	if err != nil {
		logger.Fatal().Str("user", user).Msg("-logfile requires a valid -user UUID")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("read log file")
	}

	report := alerts.AnalyzeLog(ctx, userID, string(raw))
	logger.Info().
		Str("risk", string(report.Summary.Risk)).
		Int("findings", len(report.Findings)).
		Int("lines", report.Summary.TotalLines).
		Msg("log analysis complete")
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info().Str("addr", addr).Msg("metrics listener up")
	if err := srv.ListenAndServe(); err != nil {
		logger.Error().Err(err).Msg("metrics listener")
	}
}
