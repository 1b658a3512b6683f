// Package config loads the folio settings file.
// A missing or unparsable file is replaced with defaults, mirroring first-run behaviour.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the daemon looks for its settings file.
const DefaultPath = "core/settings.yaml"

// Settings is the complete folio configuration.
type Settings struct {
	Server  ServerSettings  `yaml:"server"`
	Storage StorageSettings `yaml:"storage"`
	Auth    AuthSettings    `yaml:"auth"`
	Logging LoggingSettings `yaml:"logging"`
	Metrics MetricsSettings `yaml:"metrics"`
}

// ServerSettings holds the bind address.
type ServerSettings struct {
	Address string `yaml:"address" validate:"required,ip"`
	Port    int    `yaml:"port" validate:"min=0,max=65535"`
}

// StorageSettings locates the working, backup and remote copies of the catalogue.
type StorageSettings struct {
	RemoteURL         string        `yaml:"remote_url" validate:"required,url"`
	LocalProjectsPath string        `yaml:"local_projects_path" validate:"required"`
	LocalBackupPath   string        `yaml:"local_backup_path" validate:"required"`
	ProjectsFileName  string        `yaml:"projects_file_name" validate:"required,excludesall=/\\"`
	RemoteTimeout     time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RemoteTimeoutRaw string `yaml:"remote_timeout"`
}

// AuthSettings locates the shared secret.
type AuthSettings struct {
	PasskeyPath string `yaml:"passkey_path" validate:"required"`
}

// LoggingSettings holds logging configuration.
type LoggingSettings struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// MetricsSettings holds metrics endpoint configuration.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

// Default returns the settings written on first run.
func Default() *Settings {
	return &Settings{
		Server: ServerSettings{
			Address: "127.0.0.1",
			Port:    1234,
		},
		Storage: StorageSettings{
			RemoteURL:         "http://cdn.mikeangelo.art",
			LocalProjectsPath: "data",
			LocalBackupPath:   "backup",
			ProjectsFileName:  "projects",
			RemoteTimeout:     10 * time.Second,
			RemoteTimeoutRaw:  "10s",
		},
		Auth: AuthSettings{
			PasskeyPath: "./key/pass.key",
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsSettings{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ListenAddr is the host:port the HTTP server binds to.
func (s *Settings) ListenAddr() string {
	return net.JoinHostPort(s.Server.Address, strconv.Itoa(s.Server.Port))
}

// WorkingFile is the path of the working copy.
func (s *Settings) WorkingFile() string {
	return filepath.Join(s.Storage.LocalProjectsPath, s.Storage.ProjectsFileName+".json")
}

// BackupFile is the path of the backup copy.
func (s *Settings) BackupFile() string {
	return filepath.Join(s.Storage.LocalBackupPath, s.Storage.ProjectsFileName+".json")
}

// RemoteFile is the URL of the remote origin copy.
func (s *Settings) RemoteFile() string {
	return strings.TrimRight(s.Storage.RemoteURL, "/") + "/" + s.Storage.ProjectsFileName + ".json"
}

var validate = validator.New()

// Validate checks that all required fields are present and well formed.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid setting %s: failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

// Load reads the settings file at path. Environment variables in the form ${VAR}
// are expanded. If the file is missing or cannot be parsed, defaults are written
// to path and loaded instead. Settings that parse but fail validation are an error
// and the file is left alone.
func Load(path string, logger *zap.Logger) (*Settings, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	settings, err := parseFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("settings file not found, creating defaults", zap.String("path", path))
		} else {
			logger.Warn("settings file unreadable, replacing with defaults", zap.String("path", path), zap.Error(err))
		}
		if err := Write(path, Default()); err != nil {
			return nil, fmt.Errorf("creating settings file: %w", err)
		}
		settings, err = parseFile(path)
		if err != nil {
			return nil, fmt.Errorf("reloading settings file: %w", err)
		}
	}

	if err := parseDurations(settings); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("validating settings: %w", err)
	}
	return settings, nil
}

// Write stores settings at path, creating its directory.
func Write(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func parseFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	expanded := []byte(expandEnvVars(string(data)))

	// Start from defaults so omitted keys keep their default values.
	settings := Default()
	if legacy, ok := parseLegacy(expanded); ok {
		legacy.apply(settings)
		return settings, nil
	}
	if err := yaml.Unmarshal(expanded, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	return settings, nil
}

type legacyValue[T any] struct {
	Name  string `yaml:"name"`
	Value T      `yaml:"value"`
}

// legacySettings is the flat settings.json layout where every entry is a
// {"name", "value"} pair. It is read, never written.
type legacySettings struct {
	IPv4Addr          *legacyValue[string] `yaml:"ipv4_addr"`
	Port              *legacyValue[int]    `yaml:"port"`
	RemoteURL         *legacyValue[string] `yaml:"remote_url"`
	LocalProjectsPath *legacyValue[string] `yaml:"local_projects_path"`
	LocalBackupPath   *legacyValue[string] `yaml:"local_backup_path"`
	ProjectsFileName  *legacyValue[string] `yaml:"projects_file_name"`
}

// parseLegacy reports whether data is in the legacy layout, keyed by ipv4_addr.
func parseLegacy(data []byte) (*legacySettings, bool) {
	var legacy legacySettings
	if err := yaml.Unmarshal(data, &legacy); err != nil || legacy.IPv4Addr == nil {
		return nil, false
	}
	return &legacy, true
}

func (l *legacySettings) apply(s *Settings) {
	s.Server.Address = l.IPv4Addr.Value
	if l.Port != nil {
		s.Server.Port = l.Port.Value
	}
	if l.RemoteURL != nil {
		s.Storage.RemoteURL = l.RemoteURL.Value
	}
	if l.LocalProjectsPath != nil {
		s.Storage.LocalProjectsPath = l.LocalProjectsPath.Value
	}
	if l.LocalBackupPath != nil {
		s.Storage.LocalBackupPath = l.LocalBackupPath.Value
	}
	if l.ProjectsFileName != nil {
		s.Storage.ProjectsFileName = l.ProjectsFileName.Value
	}
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(s *Settings) error {
	if s.Storage.RemoteTimeoutRaw == "" {
		s.Storage.RemoteTimeoutRaw = "10s"
	}
	d, err := time.ParseDuration(s.Storage.RemoteTimeoutRaw)
	if err != nil {
		return fmt.Errorf("parsing remote_timeout %q: %w", s.Storage.RemoteTimeoutRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("remote_timeout must be positive, got %s", d)
	}
	s.Storage.RemoteTimeout = d
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}
