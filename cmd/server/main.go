package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/launchkol/kolfeed/internal/config"
	"github.com/launchkol/kolfeed/internal/feedfilter"
	"github.com/launchkol/kolfeed/internal/kvstore"
	"github.com/launchkol/kolfeed/internal/persistence"
	"github.com/launchkol/kolfeed/internal/profiles"
	"github.com/launchkol/kolfeed/internal/server"
)

const (
	commandUse                        = "kolfeed-server"
	commandShortDescription           = "Serve the feed settings API over HTTP"
	flagHostDescription               = "Host interface for the HTTP server"
	flagPortDescription               = "Port for the HTTP server"
	flagStorageDescription            = "Storage backend: sqlite or memory"
	flagDatabasePathDescription       = "SQLite database file holding the feed configuration"
	flagProfileBaseURLDescription     = "Base URL of the profile pages used to enrich accounts"
	flagProfileConcurrencyDescription = "Concurrent profile lookups"
	flagProfileTimeoutDescription     = "Timeout of a single profile lookup"
	flagChromePathDescription         = "Chrome executable used when rendering profiles"
	flagRenderProfilesDescription     = "Render profile pages in headless Chrome"
	flagLogLevelDescription           = "Log level: debug, info, warn or error"
	envFileName                       = ".env"
	storeContextName                  = "server"
	shutdownTimeout                   = 10 * time.Second
	errMessageLoadConfig              = "load configuration"
	errMessageLoggerCreate            = "create logger"
	errMessageStoreOpen               = "open storage"
	errMessageResolverCreate          = "create profile resolver"
	errMessageRouterCreate            = "create router"
	errMessageListenAndServe          = "listen and serve"
	logMessageStorageSelected         = "using storage backend"
	logMessageProfileRendererEnabled  = "rendering profile pages in headless chrome"
	logMessageStartingServer          = "starting HTTP server"
	logMessageShuttingDown            = "shutting down HTTP server"
	logMessageServerStopped           = "server stopped"
	logMessageListenError             = "server listen failure"
	logMessageStoreCloseFailed        = "failed to close storage"
	logFieldAddress                   = "address"
	logFieldStorage                   = "storage"
	logFieldDatabasePath              = "db_path"
)

func main() {
	cobra.CheckErr(newServerCommand().Execute())
}

func newServerCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE:  runServerCommand,
	}

	command.Flags().String(config.KeyHost, config.DefaultHost, flagHostDescription)
	command.Flags().Int(config.KeyPort, config.DefaultPort, flagPortDescription)
	command.Flags().String(config.KeyStorage, string(config.DefaultStorage), flagStorageDescription)
	command.Flags().String(config.KeyDatabasePath, config.DefaultDatabasePath, flagDatabasePathDescription)
	command.Flags().String(config.KeyProfileBaseURL, config.DefaultProfileBaseURL, flagProfileBaseURLDescription)
	command.Flags().Int(config.KeyProfileConcurrency, config.DefaultProfileConcurrency, flagProfileConcurrencyDescription)
	command.Flags().Duration(config.KeyProfileTimeout, config.DefaultProfileTimeout, flagProfileTimeoutDescription)
	command.Flags().String(config.KeyChromePath, "", flagChromePathDescription)
	command.Flags().Bool(config.KeyRenderProfiles, false, flagRenderProfilesDescription)
	command.Flags().String(config.KeyLogLevel, config.DefaultLogLevel, flagLogLevelDescription)

	for _, flagName := range []string{
		config.KeyHost,
		config.KeyPort,
		config.KeyStorage,
		config.KeyDatabasePath,
		config.KeyProfileBaseURL,
		config.KeyProfileConcurrency,
		config.KeyProfileTimeout,
		config.KeyChromePath,
		config.KeyRenderProfiles,
		config.KeyLogLevel,
	} {
		bindFlagToViper(command, flagName)
	}

	cobra.OnInitialize(configureEnvironment)

	return command
}

func bindFlagToViper(command *cobra.Command, flagName string) {
	cobra.CheckErr(viper.BindPFlag(flagName, command.Flags().Lookup(flagName)))
}

func configureEnvironment() {
	cobra.CheckErr(config.LoadEnvFiles(envFileName))
	config.ConfigureEnvironment(viper.GetViper())
}

func runServerCommand(command *cobra.Command, _ []string) error {
	configuration, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoadConfig, err)
	}
	logger, err := config.NewLogger(configuration.LogLevel)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(command.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, configuration, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageStoreOpen, err)
	}
	defer closeStore()

	adapter := persistence.NewAdapter(store, logger)
	defer adapter.Close()

	resolver, closeResolver, err := newProfileResolver(configuration, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageResolverCreate, err)
	}
	defer closeResolver()

	router, err := server.NewRouter(ctx, server.RouterConfig{
		Port:      adapter,
		Evaluator: feedfilter.NewEvaluator(),
		Profiles:  resolver,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageRouterCreate, err)
	}

	address := configuration.Address()
	logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address))

	httpServer := &http.Server{Addr: address, Handler: router}
	go func() {
		<-ctx.Done()
		logger.Info(logMessageShuttingDown)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownContext)
	}()
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(logMessageListenError, zap.Error(err))
		return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
	}

	logger.Info(logMessageServerStopped)
	return nil
}

func openStore(ctx context.Context, configuration config.Config, logger *zap.Logger) (kvstore.Store, func(), error) {
	logger.Info(logMessageStorageSelected,
		zap.String(logFieldStorage, string(configuration.Storage)),
		zap.String(logFieldDatabasePath, configuration.DatabasePath),
	)
	if configuration.Storage == config.StorageMemory {
		return kvstore.NewMemoryArea().Context(storeContextName), func() {}, nil
	}
	store, err := kvstore.OpenSQLite(ctx, kvstore.SQLiteConfig{
		Path:        configuration.DatabasePath,
		ContextName: storeContextName,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn(logMessageStoreCloseFailed, zap.Error(closeErr))
		}
	}, nil
}

func newProfileResolver(configuration config.Config, logger *zap.Logger) (*profiles.Resolver, func(), error) {
	closeFetcher := func() {}
	var fetcher profiles.PageFetcher
	if configuration.RenderProfiles {
		logger.Info(logMessageProfileRendererEnabled)
		renderer := profiles.NewChromeRenderer(profiles.ChromeRendererConfig{
			BinaryPath: configuration.ChromePath,
			Timeout:    configuration.ProfileTimeout,
		})
		fetcher = renderer
		closeFetcher = renderer.Close
	}
	resolver, err := profiles.NewResolver(profiles.Config{
		BaseURL:        configuration.ProfileBaseURL,
		Fetcher:        fetcher,
		MaxConcurrent:  configuration.ProfileConcurrency,
		AccountTimeout: configuration.ProfileTimeout,
		Logger:         logger,
	})
	if err != nil {
		closeFetcher()
		return nil, nil, err
	}
	return resolver, closeFetcher, nil
}
