package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	ClinicLocation    string        `mapstructure:"CLINIC_LOCATION"`
	StationSecret     string        `mapstructure:"STATION_TOKEN_SECRET"`
	HeartbeatInterval time.Duration `mapstructure:"HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  time.Duration `mapstructure:"HEARTBEAT_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CLINIC_LOCATION", "DR")
	v.SetDefault("HEARTBEAT_INTERVAL", "20s")
	v.SetDefault("HEARTBEAT_TIMEOUT", "45s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("CLINIC_LOCATION")
	v.BindEnv("STATION_TOKEN_SECRET")
	v.BindEnv("HEARTBEAT_INTERVAL")
	v.BindEnv("HEARTBEAT_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ==========================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Station sessions are auto-tagged with the admin role.")
		log.Println("WARNING: Set ENV=production and STATION_TOKEN_SECRET for a clinic.")
		log.Println("WARNING: ==========================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode STATION_TOKEN_SECRET must be set so station role tokens are actually
// verified, and the clinic location prefix must be usable for patient IDs.
func (c *Config) Validate() error {
	if !c.IsDev() && c.StationSecret == "" {
		return fmt.Errorf(
			"STATION_TOKEN_SECRET must be set when ENV=%q. "+
				"Refusing to start with unverifiable station sessions. "+
				"Use ENV=development for a single-machine trial run", c.Env)
	}

	if c.ClinicLocation == "" {
		return fmt.Errorf("CLINIC_LOCATION must be set (patient ID prefix, e.g. DR or H)")
	}
	for _, r := range c.ClinicLocation {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("CLINIC_LOCATION must be uppercase letters, got %q", c.ClinicLocation)
		}
	}

	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("HEARTBEAT_TIMEOUT (%s) must exceed HEARTBEAT_INTERVAL (%s)",
			c.HeartbeatTimeout, c.HeartbeatInterval)
	}

	return nil
}
