package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH" default:"data/cytolab.db"`
	OutputDir    string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"data/output"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// Paths resolves the configured paths against a base directory and provides
// helpers for the loader and analyzer binaries.
type Paths struct {
	BaseDir      string
	DataDir      string
	DatabasePath string
	OutputDir    string
	LogsDir      string
}

// GetPaths builds a Paths from defaults, resolved against the working
// directory. Binaries use this when no explicit flags are given.
func GetPaths() (*Paths, error) {
	cfg := PathsConfig{
		DataDir:      "data",
		DatabasePath: filepath.Join("data", "cytolab.db"),
		OutputDir:    filepath.Join("data", "output"),
		LogsDir:      "logs",
	}
	return cfg.Resolve("")
}

// Resolve turns a PathsConfig into absolute Paths rooted at baseDir.
// An empty baseDir means the current working directory.
func (pc PathsConfig) Resolve(baseDir string) (*Paths, error) {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		baseDir = wd
	}

	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	return &Paths{
		BaseDir:      baseDir,
		DataDir:      resolve(pc.DataDir),
		DatabasePath: resolve(pc.DatabasePath),
		OutputDir:    resolve(pc.OutputDir),
		LogsDir:      resolve(pc.LogsDir),
	}, nil
}

// DefaultCSVPath returns the conventional location of the input CSV
func (p *Paths) DefaultCSVPath() string {
	return filepath.Join(p.DataDir, "cell-count.csv")
}

// EnsureDirectories creates the data, output and logs directories if missing
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.OutputDir, p.LogsDir, filepath.Dir(p.DatabasePath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
