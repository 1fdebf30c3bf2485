package backend

import (
	"context"
	"fmt"

	applog "ledgerdash/internal/log"
	gsheet "ledgerdash/internal/sheets/google"
	"ledgerdash/internal/sheets/memory"
	"ledgerdash/internal/sheets/xlsx"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentExport),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case XLSXBackend:
		return f.createXLSXBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createXLSXBackend(config Config) (*BackendResult, error) {
	w, err := xlsx.New(config.ExportDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize xlsx writer: %w", err)
	}

	f.logger.Info("Initialized xlsx export backend", "export_dir", config.ExportDir)

	return &BackendResult{Backend: w}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, config.GoogleSpreadsheetID, gsheet.Credentials{
		JSON: config.GoogleServiceAccountJSON,
		File: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets export backend")

	return &BackendResult{Backend: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory export backend")
	return &BackendResult{Backend: memory.New()}, nil
}
