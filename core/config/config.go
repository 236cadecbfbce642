package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"portfolio-persist/core/database"
	"portfolio-persist/core/logger"
	"portfolio-persist/core/persist"
	"portfolio-persist/core/server"
	"portfolio-persist/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service, one section per component.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the dead-letter object storage.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the versioned store.
	Database database.Config `mapstructure:"database"`
	// Reconciler holds the retry and worker settings.
	Reconciler persist.Config `mapstructure:"reconciler"`
}

// LoadConfig loads configuration from environment variables and an
// optional .env file in path.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// A missing .env is normal in production.
	_ = godotenv.Overload(envPath)

	v := viper.New()
	bindValues(v, Config{}, "")

	// RECONCILER_MAX_ATTEMPTS -> reconciler.max_attempts
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Reconciler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("reconciler: %w", err))
	}
	switch strings.ToLower(c.Database.Driver) {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database: unsupported driver %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}

// bindValues walks the struct and registers every mapstructure key with
// its 'default' tag value, so AutomaticEnv can see it.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		v.SetDefault(key, defaultValue)
	}
}
