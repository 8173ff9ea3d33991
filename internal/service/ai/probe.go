package ai

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BackendStatus summarizes backend reachability for the status endpoint.
type BackendStatus struct {
	Connected       bool     `json:"connected"`
	ModelAvailable  bool     `json:"model_available"`
	AvailableModels []string `json:"available_models"`
	CurrentModel    string   `json:"current_model"`
}

// CheckConnection reports whether the backend answers its tags endpoint.
func (s *Service) CheckConnection(ctx context.Context) bool {
	_, err := s.backend.ListModels(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("ai: backend unreachable")
		return false
	}
	return true
}

// CheckModel reports whether model (the configured one when empty) is installed.
// Names match by substring so "gemma3n" finds "gemma3n:latest".
func (s *Service) CheckModel(ctx context.Context, model string) bool {
	if model == "" {
		model = s.backend.Model()
	}
	names, err := s.backend.ListModels(ctx)
	if err != nil {
		return false
	}
	return containsModel(names, model)
}

// ListModels returns the installed model names, or an empty list on failure.
func (s *Service) ListModels(ctx context.Context) []string {
	names, err := s.backend.ListModels(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("ai: list models failed")
		return []string{}
	}
	return names
}

// Status gathers connection and model availability concurrently.
func (s *Service) Status(ctx context.Context) BackendStatus {
	status := BackendStatus{
		CurrentModel:    s.backend.Model(),
		AvailableModels: []string{},
	}

	var g errgroup.Group
	g.Go(func() error {
		status.Connected = s.CheckConnection(ctx)
		return nil
	})
	g.Go(func() error {
		status.AvailableModels = s.ListModels(ctx)
		return nil
	})
	_ = g.Wait()

	status.ModelAvailable = containsModel(status.AvailableModels, status.CurrentModel)
	return status
}

// Pull installs model on the backend.
func (s *Service) Pull(ctx context.Context, model string, progress func(status string, completed, total int64)) error {
	return s.backend.Pull(ctx, model, progress)
}

func containsModel(names []string, model string) bool {
	for _, name := range names {
		if strings.Contains(name, model) {
			return true
		}
	}
	return false
}
