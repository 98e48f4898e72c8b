package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/taskify/auth-server/auth"
	"github.com/taskify/auth-server/federation"
	"github.com/taskify/auth-server/internal/config"
	"github.com/taskify/auth-server/server"
	"github.com/taskify/auth-server/sessions"
	"github.com/taskify/auth-server/store/redisstore"
	"github.com/taskify/auth-server/token"
	"github.com/taskify/auth-server/token/refresh"
	"github.com/taskify/auth-server/users"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogging(cfg.Env)
	displayAppname(cfg.AppName)

	ctx := context.Background()

	// The Redis client is constructed here, once, and injected everywhere it
	// is needed; it is closed on the way out.
	redisClient, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("closing redis client")
		}
	}()

	resolver, err := users.NewResolver(redisstore.NewUserRepo(redisClient))
	if err != nil {
		return err
	}
	ledger, err := refresh.NewLedger(redisstore.NewRefreshTokenRepo(redisClient))
	if err != nil {
		return err
	}
	registry, err := sessions.NewRegistry(redisstore.NewSessionRepo(redisClient), sessions.WithTTL(cfg.RefreshTokenTTL))
	if err != nil {
		return err
	}

	tokenManager := token.New(
		token.NewHMACSigner(cfg.SecretKey),
		token.WithTokenExpiry(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
	)

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}

	authService, err := auth.NewService(auth.Dependencies{
		Users:     redisstore.NewUserRepo(redisClient),
		Resolver:  resolver,
		Tokens:    tokenManager,
		Ledger:    ledger,
		Sessions:  registry,
		Providers: providers,
		States:    federation.NewStateSigner(cfg.SecretKey),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: server.New(cfg, authService)}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildProviders(ctx context.Context, cfg *config.Config) (federation.Registry, error) {
	var providers []federation.Provider

	if google := cfg.Google(); google.Enabled() {
		p, err := federation.NewGoogleProvider(ctx, google.ClientID, google.ClientSecret, google.RedirectURI)
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		providers = append(providers, p)
	}
	if github := cfg.GitHub(); github.Enabled() {
		providers = append(providers, federation.NewGitHubProvider(github.ClientID, github.ClientSecret, github.RedirectURI))
	}

	if len(providers) == 0 {
		log.Warn().Msg("no federated identity providers configured")
	}
	return federation.NewRegistry(providers...), nil
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
