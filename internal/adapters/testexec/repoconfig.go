package testexec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// RepoConfigFile is the optional per-repository configuration file.
const RepoConfigFile = ".healwright.yml"

// RepoConfig overrides toolchain detection for one repository.
type RepoConfig struct {
	TestCommand    string   `yaml:"testCommand"`
	InstallCommand string   `yaml:"installCommand"`
	WorkingDir     string   `yaml:"workingDir"`
	ReportGlobs    []string `yaml:"reportGlobs"`
}

// loadRepoConfig reads RepoConfigFile from dir. A missing file yields the zero config.
func loadRepoConfig(dir string) (RepoConfig, error) {
	var cfg RepoConfig
	data, err := os.ReadFile(filepath.Join(dir, RepoConfigFile)) // #nosec G304 - fixed file name inside the workspace
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", RepoConfigFile, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", RepoConfigFile, err)
	}
	cfg.TestCommand = strings.TrimSpace(cfg.TestCommand)
	cfg.InstallCommand = strings.TrimSpace(cfg.InstallCommand)
	cfg.WorkingDir = filepath.Clean(strings.TrimSpace(cfg.WorkingDir))
	if cfg.WorkingDir == "." {
		cfg.WorkingDir = ""
	}
	if filepath.IsAbs(cfg.WorkingDir) || strings.HasPrefix(cfg.WorkingDir, "..") {
		return cfg, fmt.Errorf("%s: workingDir must stay inside the repository", RepoConfigFile)
	}
	return cfg, nil
}
