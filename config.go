package djvukeeper

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all djvukeeper configuration.
type Config struct {
	// ImagesRoot is the MediaWiki-style hash-bucket image tree.
	ImagesRoot string `yaml:"images_root"`
	// BackupDir receives pre-bundling backup archives.
	BackupDir string `yaml:"backup_dir"`
	// DBPath is the SQLite catalog database.
	DBPath string `yaml:"db_path"`
	// PackagesDir holds packaged conversion output (zip/tar archives).
	PackagesDir string `yaml:"packages_dir"`

	// DumpCommand and ConvertCommand name the DjVuLibre tools.
	DumpCommand    string `yaml:"dump_command"`
	ConvertCommand string `yaml:"convert_command"`

	// FinalizeDelay is the settle pause before timestamp restoration.
	FinalizeDelay time.Duration `yaml:"finalize_delay"`
	// ScanConcurrency bounds parallel dump invocations during a scan.
	ScanConcurrency int `yaml:"scan_concurrency"`
	// MaxErrorPercent is the scan error threshold above which catalog
	// results are not committed to the database.
	MaxErrorPercent float64 `yaml:"max_error_percent"`

	// ContainerName optionally names the MediaWiki docker container for
	// the metadata refresh step of generated scripts. Empty disables it.
	ContainerName string `yaml:"container_name"`
}

func (c *Config) defaults() {
	if c.ImagesRoot == "" {
		c.ImagesRoot = "images"
	}
	if c.BackupDir == "" {
		c.BackupDir = "backup"
	}
	if c.DBPath == "" {
		c.DBPath = "djvukeeper.db"
	}
	if c.PackagesDir == "" {
		c.PackagesDir = "packages"
	}
	if c.DumpCommand == "" {
		c.DumpCommand = "djvudump"
	}
	if c.ConvertCommand == "" {
		c.ConvertCommand = "djvmcvt"
	}
	if c.FinalizeDelay <= 0 {
		c.FinalizeDelay = time.Second
	}
	if c.ScanConcurrency <= 0 {
		c.ScanConcurrency = 4
	}
	if c.MaxErrorPercent <= 0 {
		c.MaxErrorPercent = 1.0
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
