package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains the local directories used by the fs storage backend and
// the exporters
type Paths struct {
	DataDir        string
	ExportsDir     string
	LogsDir        string
	DefinitionsDir string
}

// NewPaths resolves the configured directories. Relative paths are taken
// from the working directory.
func NewPaths(cfg *Config) (*Paths, error) {
	data, err := filepath.Abs(cfg.Storage.LocalRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	logs, err := filepath.Abs(filepath.Dir(cfg.Logging.FilePath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve logs dir: %w", err)
	}
	defs, err := filepath.Abs(cfg.Pipeline.DefinitionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve definitions dir: %w", err)
	}
	return &Paths{
		DataDir:        data,
		ExportsDir:     filepath.Join(data, "exports"),
		LogsDir:        logs,
		DefinitionsDir: defs,
	}, nil
}

// EnsureDirectories creates the data, exports and logs directories
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.ExportsDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// BucketDir returns the directory backing a bucket
func (p *Paths) BucketDir(bucket string) string {
	return filepath.Join(p.DataDir, bucket)
}

// ExportPath returns the path for an exported file
func (p *Paths) ExportPath(filename string) string {
	return filepath.Join(p.ExportsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LogPathResolution logs the resolved directories
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("data", p.DataDir),
			slog.String("exports", p.ExportsDir),
			slog.String("logs", p.LogsDir),
			slog.String("definitions", p.DefinitionsDir),
		))
}
