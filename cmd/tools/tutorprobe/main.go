package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stemforge/stem-forge/backend/internal/config"
	"github.com/stemforge/stem-forge/backend/internal/logging"
	"github.com/stemforge/stem-forge/backend/internal/model/subject"
	"github.com/stemforge/stem-forge/backend/internal/service/ai"
)

type probeOptions struct {
	baseURL string
	model   string
	timeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &probeOptions{}

	root := &cobra.Command{
		Use:           "tutorprobe",
		Short:         "Check and prepare the Ollama backend used by the tutor",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "Ollama base URL (defaults to OLLAMA_BASE_URL)")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "model name (defaults to OLLAMA_MODEL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall timeout for status, models and ask")

	root.AddCommand(
		newStatusCmd(opts),
		newModelsCmd(opts),
		newAskCmd(opts),
		newPullCmd(opts),
	)
	return root
}

// buildService loads configuration, applies flag overrides and builds the tutor service.
func buildService(opts *probeOptions) (*ai.Service, config.OllamaConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.OllamaConfig{}, errors.Wrap(err, "load configuration")
	}
	logging.Setup(cfg.Log)

	ollama := cfg.Ollama
	if opts.baseURL != "" {
		ollama.BaseURL = strings.TrimRight(opts.baseURL, "/")
	}
	if opts.model != "" {
		ollama.Model = opts.model
	}

	backend, err := ai.NewBackend(ollama, &http.Client{})
	if err != nil {
		return nil, config.OllamaConfig{}, err
	}
	return ai.NewService(backend, subject.NewMemoryStore(subject.Seed()), ollama), ollama, nil
}

func newStatusCmd(opts *probeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connectivity, model availability and run a test query",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := buildService(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			return runStatus(ctx, cmd.OutOrStdout(), svc, cfg)
		},
	}
}

func runStatus(ctx context.Context, out io.Writer, svc *ai.Service, cfg config.OllamaConfig) error {
	fmt.Fprintln(out, "Testing Ollama connection...")
	if !svc.CheckConnection(ctx) {
		fmt.Fprintf(out, "FAIL  Ollama is not reachable at %s\n", cfg.BaseURL)
		return errors.New("ollama unreachable")
	}
	fmt.Fprintln(out, "OK    Ollama service is running")

	if !svc.CheckModel(ctx, "") {
		fmt.Fprintf(out, "FAIL  Model %s is not available\n", cfg.Model)
		fmt.Fprintf(out, "      Available models: %s\n", strings.Join(svc.ListModels(ctx), ", "))
		return errors.Errorf("model %s not installed", cfg.Model)
	}
	fmt.Fprintf(out, "OK    Model %s is available\n", cfg.Model)

	fmt.Fprintln(out, "Testing simple query...")
	answer, err := svc.Complete(ctx, "What is 2+2?", nil)
	if err != nil {
		fmt.Fprintf(out, "FAIL  Query test failed: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "OK    Query test successful")
	fmt.Fprintf(out, "      Response: %s\n", truncate(answer, 100))
	return nil
}

func newModelsCmd(opts *probeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models installed on the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := buildService(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			for _, name := range svc.ListModels(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newAskCmd(opts *probeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Stream a tutor answer to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := buildService(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			return streamAnswer(ctx, cmd.OutOrStdout(), svc, strings.Join(args, " "))
		},
	}
}

func streamAnswer(ctx context.Context, out io.Writer, svc *ai.Service, prompt string) error {
	stream, err := svc.Stream(ctx, prompt, nil)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err != nil {
			return errors.Wrap(ai.ErrStreamInterrupted, "ask")
		}
		switch event.Type {
		case ai.EventChunk:
			fmt.Fprint(out, event.Chunk)
		case ai.EventDone:
			fmt.Fprintln(out)
			return nil
		case ai.EventError:
			fmt.Fprintln(out)
			return event.Err
		}
	}
}

func newPullCmd(opts *probeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [model]",
		Short: "Download a model onto the backend (defaults to the configured model)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := buildService(opts)
			if err != nil {
				return err
			}
			model := cfg.Model
			if len(args) == 1 {
				model = args[0]
			}

			out := cmd.OutOrStdout()
			lastStatus := ""
			err = svc.Pull(cmd.Context(), model, func(status string, completed, total int64) {
				if total > 0 {
					fmt.Fprintf(out, "\r%s %3d%%", status, completed*100/total)
					return
				}
				if status != lastStatus {
					fmt.Fprintf(out, "\n%s", status)
					lastStatus = status
				}
			})
			fmt.Fprintln(out)
			if err != nil {
				log.Error().Err(err).Str("model", model).Msg("pull failed")
				return err
			}
			fmt.Fprintf(out, "Model %s is ready\n", model)
			return nil
		},
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
