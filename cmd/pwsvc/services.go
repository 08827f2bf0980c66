package main

import (
	"context"
	"io"

	"go.uber.org/zap"

	"pwsvc/internal/onedrive"
	"pwsvc/internal/service"
	"pwsvc/internal/store"
	"pwsvc/internal/summarize"
	"pwsvc/internal/toggl"
	"pwsvc/internal/usage"
)

var _ service.TokenRotator = (*onedrive.Client)(nil)

func oneDriveCredentials() onedrive.Credentials {
	return onedrive.Credentials{
		ClientID:     cfg.OneDrive.ApplicationID,
		ClientSecret: cfg.OneDrive.ClientSecret,
		Tenant:       cfg.OneDrive.Tenant,
		RedirectURL:  cfg.OneDrive.RedirectURL,
	}
}

// newLeftOffService wires the digest from configuration. artifacts may be nil.
func newLeftOffService(ctx context.Context, artifacts *store.ArtifactStore, out io.Writer) (service.Runner, error) {
	if err := cfg.ValidateLeftOff(); err != nil {
		return nil, err
	}

	downloader, err := onedrive.NewClient(onedrive.Config{
		Credentials:  oneDriveCredentials(),
		RefreshToken: cfg.OneDrive.RefreshToken,
		GraphBaseURL: cfg.OneDrive.GraphBaseURL,
		Timeout:      cfg.GetOneDriveTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}

	baseURL := ""
	if cfg.LLM.Provider == "openai" {
		baseURL = cfg.LLM.BaseURL
	}
	summarizer, err := summarize.New(ctx, summarize.Options{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  baseURL,
		Timeout:  cfg.GetLLMTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}

	tmpl, err := summarize.LoadTemplate(cfg.LeftOff.TemplatePath)
	if err != nil {
		return nil, err
	}

	tracker, err := usage.NewTracker(cfg.UsagePath())
	if err != nil {
		logger.Warn("usage history unreadable; starting fresh", zap.Error(err))
	}

	svc := &service.LeftOff{
		Config:     cfg,
		Downloader: downloader,
		Summarizer: summarizer,
		Template:   tmpl,
		Usage:      tracker,
		Logger:     logger,
		Out:        out,
		Now:        clock,
	}
	if artifacts != nil {
		svc.Store = artifacts
	}
	return svc, nil
}

// newTogglService wires the export from configuration. artifacts may be nil.
func newTogglService(artifacts *store.ArtifactStore, out io.Writer) (service.Runner, error) {
	if err := cfg.ValidateToggl(); err != nil {
		return nil, err
	}
	client, err := toggl.NewClient(toggl.Config{
		APIToken: cfg.Toggl.APIToken,
		BaseURL:  cfg.Toggl.BaseURL,
		Timeout:  cfg.GetTogglTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}

	svc := &service.Toggl{
		Config: cfg,
		API:    client,
		Logger: logger,
		Out:    out,
		Now:    clock,
	}
	if artifacts != nil {
		svc.Store = artifacts
	}
	return svc, nil
}
