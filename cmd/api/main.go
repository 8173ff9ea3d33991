package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/stemforge/stem-forge/backend/internal/config"
	"github.com/stemforge/stem-forge/backend/internal/handler"
	"github.com/stemforge/stem-forge/backend/internal/logging"
	"github.com/stemforge/stem-forge/backend/internal/model/subject"
	"github.com/stemforge/stem-forge/backend/internal/service/ai"
	"github.com/stemforge/stem-forge/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log)

	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	// Initialize subject catalog and chat store
	subjects := subject.NewMemoryStore(subject.Seed())

	doc, closer, err := openDocument(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", string(cfg.Store.Driver)).Msg("failed to open chat store")
	}
	defer closer.Close()
	chatService := chat.NewService(doc)
	log.Info().Str("driver", string(cfg.Store.Driver)).Str("location", chatService.Location()).Msg("chat store ready")

	// Initialize tutor service
	backend, err := ai.NewBackend(cfg.Ollama, &http.Client{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ollama backend")
	}
	aiService := ai.NewService(backend, subjects, cfg.Ollama)

	status := aiService.Status(ctx)
	switch {
	case !status.Connected:
		log.Warn().Str("base_url", cfg.Ollama.BaseURL).Msg("ollama is not reachable yet, requests will fail until it is running")
	case !status.ModelAvailable:
		log.Warn().Str("model", cfg.Ollama.Model).Strs("available", status.AvailableModels).Msg("configured model is not installed, run `tutorprobe pull`")
	default:
		log.Info().Str("model", cfg.Ollama.Model).Msg("ollama backend ready")
	}

	router := handler.NewRouter(subjects, chatService, aiService)

	startServer(ctx, cfg.Server, router)
}

// openDocument picks the medium holding the chat collection.
func openDocument(cfg config.StoreConfig) (chat.Document, io.Closer, error) {
	switch cfg.Driver {
	case config.StoreDriverSQLite:
		doc, err := chat.NewSQLiteDocument(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return doc, doc, nil
	default:
		return chat.NewFileDocument(cfg.File), io.NopCloser(nil), nil
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("STEM Forge tutor backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
