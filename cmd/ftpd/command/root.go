package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gonzalop/ftpd/internal/config"
	"github.com/gonzalop/ftpd/internal/logger"
	"github.com/gonzalop/ftpd/internal/metrics"
	"github.com/gonzalop/ftpd/server"
)

var (
	rootDir    string
	configFile string
	debug      bool
	logFile    string
)

var RootCmd = &cobra.Command{
	Use:          "ftpd",
	Short:        "Sandboxed passive-mode FTP server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "directory served as / (default: current directory)")
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file (default: <root>/"+config.DefaultFileName+")")
	RootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	RootCmd.Flags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated")
	RootCmd.AddCommand(UsersCmd)
}

// resolvePaths applies the defaults for --root and --config.
func resolvePaths() (root, cfgPath string, err error) {
	root = rootDir
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return "", "", err
		}
	}
	cfgPath = configFile
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.DefaultFileName)
	}
	return root, cfgPath, nil
}

func runServer(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logCloser := logger.Init(logger.Options{Debug: debug, File: logFile})
	defer func() { closeQuietly(logCloser, "log file") }()

	root, cfgPath, err := resolvePaths()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration.")
		return err
	}

	// The file may ask for more logging than the flags did.
	if (cfg.Logging.Debug && !debug) || (cfg.Logging.File != "" && logFile == "") {
		closeQuietly(logCloser, "log file")
		file := logFile
		if file == "" {
			file = cfg.Logging.File
		}
		logCloser = logger.Init(logger.Options{Debug: debug || cfg.Logging.Debug, File: file})
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	srv, err := server.NewServer(cfg.ListenAddr(), serverOptions(cfg, root, collector)...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create server.")
		return err
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.Handler(prometheus.DefaultGatherer),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Msgf("Serving metrics on %s.", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed.")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		_ = srv.Shutdown()
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
	}()

	log.Info().Msgf("Starting ftpd on %s, serving %s.", cfg.ListenAddr(), srv.Root())
	err = srv.ListenAndServe()
	if errors.Is(err, server.ErrServerClosed) {
		return nil
	}
	return err
}

// serverOptions translates the configuration into server options.
func serverOptions(cfg *config.Config, root string, collector server.MetricsCollector) []server.Option {
	opts := []server.Option{
		server.WithRoot(root),
		server.WithCredentials(credentials(cfg)),
		server.WithLogger(log.Logger),
		server.WithProtectedFile(cfg.Path),
		server.WithMaxConnections(cfg.Limits.MaxConnections),
		server.WithBandwidthLimit(cfg.Limits.Bandwidth),
	}
	if cfg.Passive.Host != "" {
		opts = append(opts, server.WithPassiveHost(cfg.Passive.Host))
	}
	if collector != nil {
		opts = append(opts, server.WithMetrics(collector))
	}
	return opts
}

func credentials(cfg *config.Config) *server.Credentials {
	var admin *server.Account
	if cfg.Admin != nil {
		admin = &server.Account{Name: cfg.Admin.Name, Password: cfg.Admin.Password}
	}
	users := make([]server.Account, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, server.Account{Name: u.Name, Password: u.Password})
	}
	return server.NewCredentials(admin, users)
}

func closeQuietly(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "closing %s: %v\n", what, err)
	}
}
