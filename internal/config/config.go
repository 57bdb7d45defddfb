package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/healthlock/consent-node/internal/log"
)

// Configuration holds the project configuration
type Configuration struct {
	ServerPort int
	Database   Database `mapstructure:"Database"`
	Cache      Cache    `mapstructure:"Cache"`
	KeyStore   KeyStore `mapstructure:"KeyStore"`
	Log        Log      `mapstructure:"Log"`
	Policy     Policy   `mapstructure:"Policy"`
	Audit      Audit    `mapstructure:"Audit"`
}

// Database has the database configuration
// URL: The database connection string
type Database struct {
	URL string `mapstructure:"Url" tip:"The Datasource name locator"`
}

// Cache configurations
type Cache struct {
	RedisUrl string `mapstructure:"RedisUrl" tip:"The redis url to use as a cache"`
}

// KeyStore defines the key custody backend. When Address is empty the engine falls
// back to the local encrypted file provider rooted at LocalPath.
type KeyStore struct {
	Address   string `mapstructure:"Address" tip:"Vault address"`
	Token     string `mapstructure:"Token" tip:"Vault token"`
	MountPath string `mapstructure:"MountPath" tip:"Vault KV mount path for subject keys"`
	LocalPath string `mapstructure:"LocalPath" tip:"Directory for the local file key provider"`
}

// Log holds runtime configurations
//
// Level: The minimum log level to show on logs. Values can be
//
//	 -4: Debug
//		0: Info
//		4: Warning
//		8: Error
//
// Mode: Log mode is the format of the log. It can be text or json
// 1: JSON
// 2: Text
type Log struct {
	Level int `mapstructure:"Level" tip:"Minimum level to log: (-4:Debug, 0:Info, 4:Warning, 8:Error)"`
	Mode  int `mapstructure:"Mode" tip:"Log format (1: JSON, 2:Structured text)"`
}

// Policy gathers the temporal and throttling policy knobs of the engine.
type Policy struct {
	MinCredentialTTL  time.Duration `mapstructure:"MinCredentialTTL" tip:"Minimum allowed credential lifetime"`
	MaxCredentialTTL  time.Duration `mapstructure:"MaxCredentialTTL" tip:"Maximum allowed credential lifetime"`
	DefaultConsentTTL time.Duration `mapstructure:"DefaultConsentTTL" tip:"Consent lifetime when the approver does not state one"`
	ProofTTL          time.Duration `mapstructure:"ProofTTL" tip:"Verification code lifetime"`
	RateLimit         int           `mapstructure:"RateLimit" tip:"Attempts per actor per window for throttled operations"`
	RateWindow        time.Duration `mapstructure:"RateWindow" tip:"Throttling window"`
	StoreTimeout      time.Duration `mapstructure:"StoreTimeout" tip:"Bounded timeout for persistent store calls"`
}

// Audit holds the audit trail collaborator endpoint. An empty URL disables delivery
// (events are still logged locally).
type Audit struct {
	URL string `mapstructure:"Url" tip:"Audit trail sink endpoint"`
}

// Sanitize performs some basic checks and sanitizations in the configuration.
// Returns nil if config is acceptable, error otherwise.
func (c *Configuration) Sanitize() error {
	if c.ServerPort == 0 {
		return fmt.Errorf("a port for the API server must be provided")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("a database connection string must be provided")
	}
	if c.Policy.MinCredentialTTL <= 0 || c.Policy.MaxCredentialTTL < c.Policy.MinCredentialTTL {
		return fmt.Errorf("credential TTL policy range is invalid: min=%s max=%s",
			c.Policy.MinCredentialTTL, c.Policy.MaxCredentialTTL)
	}
	if c.KeyStore.Address == "" && c.KeyStore.LocalPath == "" {
		return fmt.Errorf("a key store backend must be configured (vault address or local path)")
	}
	return nil
}

// Load loads the configuration from a file
func Load(fileName string) (*Configuration, error) {
	bindEnv()
	pathFlag := viper.GetString("config")
	if _, err := os.Stat(pathFlag); err == nil {
		ext := filepath.Ext(pathFlag)
		if len(ext) > 1 {
			ext = ext[1:]
		}
		name := strings.Split(filepath.Base(pathFlag), ".")[0]
		viper.AddConfigPath(".")
		viper.SetConfigName(name)
		viper.SetConfigType(ext)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("toml")
		if fileName == "" {
			viper.SetConfigName("config")
		} else {
			viper.SetConfigName(fileName)
		}
	}

	config := &Configuration{
		Log: Log{
			Level: log.LevelDebug,
			Mode:  log.OutputText,
		},
		Policy: defaultPolicy(),
	}
	ctx := context.Background()
	if err := viper.ReadInConfig(); err != nil {
		log.Info(ctx, "config file not found, relying on env vars and defaults")
	}
	if err := viper.Unmarshal(config); err != nil {
		log.Error(ctx, "error unmarshalling config file", err)
	}
	return config, nil
}

func defaultPolicy() Policy {
	const (
		defaultMinTTL       = time.Hour
		defaultMaxTTL       = 90 * 24 * time.Hour
		defaultConsentTTL   = 24 * time.Hour
		defaultProofTTL     = 72 * time.Hour
		defaultRateLimit    = 10
		defaultRateWindow   = time.Minute
		defaultStoreTimeout = 5 * time.Second
	)
	return Policy{
		MinCredentialTTL:  defaultMinTTL,
		MaxCredentialTTL:  defaultMaxTTL,
		DefaultConsentTTL: defaultConsentTTL,
		ProofTTL:          defaultProofTTL,
		RateLimit:         defaultRateLimit,
		RateWindow:        defaultRateWindow,
		StoreTimeout:      defaultStoreTimeout,
	}
}

func bindEnv() {
	viper.SetEnvPrefix("CONSENT")
	_ = viper.BindEnv("ServerPort", "CONSENT_SERVER_PORT")

	_ = viper.BindEnv("Database.Url", "CONSENT_DATABASE_URL")
	_ = viper.BindEnv("Cache.RedisUrl", "CONSENT_CACHE_REDIS_URL")

	_ = viper.BindEnv("Log.Level", "CONSENT_LOG_LEVEL")
	_ = viper.BindEnv("Log.Mode", "CONSENT_LOG_MODE")

	_ = viper.BindEnv("KeyStore.Address", "CONSENT_KEY_STORE_ADDRESS")
	_ = viper.BindEnv("KeyStore.Token", "CONSENT_KEY_STORE_TOKEN")
	_ = viper.BindEnv("KeyStore.MountPath", "CONSENT_KEY_STORE_MOUNT_PATH")
	_ = viper.BindEnv("KeyStore.LocalPath", "CONSENT_KEY_STORE_LOCAL_PATH")

	_ = viper.BindEnv("Policy.MinCredentialTTL", "CONSENT_POLICY_MIN_CREDENTIAL_TTL")
	_ = viper.BindEnv("Policy.MaxCredentialTTL", "CONSENT_POLICY_MAX_CREDENTIAL_TTL")
	_ = viper.BindEnv("Policy.DefaultConsentTTL", "CONSENT_POLICY_DEFAULT_CONSENT_TTL")
	_ = viper.BindEnv("Policy.ProofTTL", "CONSENT_POLICY_PROOF_TTL")
	_ = viper.BindEnv("Policy.RateLimit", "CONSENT_POLICY_RATE_LIMIT")
	_ = viper.BindEnv("Policy.RateWindow", "CONSENT_POLICY_RATE_WINDOW")
	_ = viper.BindEnv("Policy.StoreTimeout", "CONSENT_POLICY_STORE_TIMEOUT")

	_ = viper.BindEnv("Audit.Url", "CONSENT_AUDIT_URL")

	viper.AutomaticEnv()
}
