// Package service implements external-collaborator adapters: the project
// launch URL builder and the attendance spreadsheet exporter.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
)

// LaunchURLService builds the continuation URL a client follows after a
// successful launch. The project runtime that serves the URL lives outside
// this system; only the URL shape is owned here.
type LaunchURLService struct {
	baseURL string
}

// NewLaunchURLService creates a launch URL builder rooted at baseURL
// (e.g. "https://score.example.org").
func NewLaunchURLService(baseURL string) (*LaunchURLService, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("service: launch base url is required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("service: invalid launch base url: %w", err)
	}

	return &LaunchURLService{baseURL: trimmed}, nil
}

// StartProjectURL returns the URL that opens the project for the workgroup.
func (s *LaunchURLService) StartProjectURL(_ context.Context, r *run.Run, wg *workgroup.Workgroup) (string, error) {
	if r == nil || wg == nil {
		return "", errors.New("service: run and workgroup are required")
	}

	return fmt.Sprintf("%s/project/%s/group/%s",
		s.baseURL,
		url.PathEscape(r.ID),
		url.PathEscape(wg.ID),
	), nil
}
