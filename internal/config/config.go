// Package config loads the injector configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pboyd/inject"
	"github.com/pboyd/inject/internal/version"
)

// DefaultFile is looked up in the host directory when no config path is given.
const DefaultFile = "injector.yaml"

// Config is the injector configuration file.
type Config struct {
	// HostDir is the host installation directory. Relative paths below are
	// resolved against it.
	HostDir  string `yaml:"host_dir"`
	HostName string `yaml:"host_name"`

	Targets   TargetsConfig   `yaml:"targets"`
	Backups   BackupsConfig   `yaml:"backups"`
	Identity  IdentityConfig  `yaml:"identity"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TargetsConfig names the modules to patch.
type TargetsConfig struct {
	Core       string `yaml:"core" validate:"required"`
	Virtualize string `yaml:"virtualize"`
}

// BackupsConfig says where backup sets live.
type BackupsConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// IdentityConfig is the injector's own module identity.
type IdentityConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version" validate:"required"`
}

// BootstrapConfig names the type whose initializer calls the hook, and the
// hook itself.
type BootstrapConfig struct {
	Namespace string     `yaml:"namespace"`
	Type      string     `yaml:"type" validate:"required"`
	Hook      HookConfig `yaml:"hook"`
}

// HookConfig names a zero-argument method.
type HookConfig struct {
	Type       string `yaml:"type" validate:"required"`
	Method     string `yaml:"method" validate:"required"`
	ReturnType string `yaml:"return_type,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		HostDir:  ".",
		HostName: "Game",
		Targets: TargetsConfig{
			Core:       filepath.Join("Game_Data", "Managed", "Engine.CoreModule.dll"),
			Virtualize: filepath.Join("Game_Data", "Managed", "Game.dll"),
		},
		Identity: IdentityConfig{
			Name:    "Injector",
			Version: version.Version,
		},
		Bootstrap: BootstrapConfig{
			Namespace: "Engine",
			Type:      "Application",
			Hook: HookConfig{
				Type:   "Injector.Injector",
				Method: "CreateBootstrapper",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	var verrs validator.ValidationErrors
	if err := validate.Struct(c); errors.As(err, &verrs) {
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	} else if err != nil {
		errs = append(errs, err)
	}

	if c.Backups.Dir == "" && c.HostName == "" {
		errs = append(errs, errors.New("backups.dir or host_name is required"))
	}
	if c.Identity.Version != "" {
		if _, err := inject.ParseVersion(c.Identity.Version); err != nil {
			errs = append(errs, fmt.Errorf("identity.version: %w", err))
		}
	}
	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) error {
	// The namespace starts with the struct name, not a yaml key.
	_, key, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", key)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", key, fe.Param())
	}
	return fmt.Errorf("%s is invalid (%s)", key, fe.Tag())
}

// Resolve returns path relative to the host directory unless it is absolute.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.HostDir, path)
}

// BackupRoot returns the resolved backup directory, by default
// Injector/Backups/<host name>.
func (c *Config) BackupRoot() string {
	if c.Backups.Dir == "" {
		return c.Resolve(filepath.Join("Injector", "Backups", c.HostName))
	}
	return c.Resolve(c.Backups.Dir)
}

// InjectorIdentity returns the configured identity.
func (c *Config) InjectorIdentity() (inject.Identity, error) {
	v, err := inject.ParseVersion(c.Identity.Version)
	if err != nil {
		return inject.Identity{}, err
	}
	return inject.Identity{Name: c.Identity.Name, Version: v}, nil
}

// Patcher builds a patcher for the configured host. The logger is left for
// the caller to set.
func (c *Config) Patcher() (*inject.Patcher, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	id, err := c.InjectorIdentity()
	if err != nil {
		return nil, err
	}

	return &inject.Patcher{
		Identity: id,
		Initializer: inject.Initializer{
			Namespace: c.Bootstrap.Namespace,
			Type:      c.Bootstrap.Type,
			Hook: inject.Hook{
				DeclaringType: c.Bootstrap.Hook.Type,
				Name:          c.Bootstrap.Hook.Method,
				ReturnType:    c.Bootstrap.Hook.ReturnType,
			},
		},
		Targets: inject.Targets{
			Core:       c.Resolve(c.Targets.Core),
			Virtualize: c.Resolve(c.Targets.Virtualize),
		},
		BackupRoot: c.BackupRoot(),
		BaseDir:    c.HostDir,
	}, nil
}
