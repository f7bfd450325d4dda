// Package config loads KAS settings from the environment and an optional
// config file. Every key has a KAS_ environment form.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    Server    `mapstructure:"server"`
	IDP       IDP       `mapstructure:"idp"`
	Keys      Keys      `mapstructure:"keys"`
	Authority Authority `mapstructure:"authority"`
	DB        DB        `mapstructure:"db"`
	Logging   Logging   `mapstructure:"logging"`
}

type Server struct {
	Addr               string `mapstructure:"addr"`
	RequestTimeoutSecs int    `mapstructure:"request_timeout_secs"`
}

type IDP struct {
	// One of the three must be set: a static PEM on disk, a JWKS endpoint
	// to follow key rotations, or an issuer to discover the JWKS endpoint
	// from.
	PublicKeyPath string `mapstructure:"public_key_path"`
	JWKSURL       string `mapstructure:"jwks_url"`
	Issuer        string `mapstructure:"issuer"`
	// AllowUnverified skips token signature checks. Only for deployments
	// where an administrative boundary already verified the token.
	AllowUnverified bool `mapstructure:"allow_unverified"`
}

type Keys struct {
	PrivateKeyPath   string `mapstructure:"private_key_path"`
	CertificatePath  string `mapstructure:"certificate_path"`
	ECPrivateKeyPath string `mapstructure:"ec_private_key_path"`
}

type Authority struct {
	URL              string `mapstructure:"url"`
	FetchTimeoutSecs int    `mapstructure:"fetch_timeout_secs"`
	CacheTTLSecs     int    `mapstructure:"cache_ttl_secs"`

	// mTLS to the attribute authority.
	CACertPath     string `mapstructure:"ca_cert_path"`
	ClientCertPath string `mapstructure:"client_cert_path"`
	ClientKeyPath  string `mapstructure:"client_key_path"`

	// OAuth2 client credentials, when the authority requires a service
	// account token.
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type DB struct {
	// URL enables the postgres upsert plugin when set.
	URL string `mapstructure:"url"`
}

type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (a Authority) FetchTimeout() time.Duration {
	if a.FetchTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.FetchTimeoutSecs) * time.Second
}

func (a Authority) CacheTTL() time.Duration {
	if a.CacheTTLSecs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(a.CacheTTLSecs) * time.Second
}

func (s Server) RequestTimeout() time.Duration {
	if s.RequestTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// Load reads the optional config file then lets KAS_* environment
// variables override it, e.g. KAS_IDP_JWKS_URL, KAS_KEYS_PRIVATE_KEY_PATH,
// KAS_AUTHORITY_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("kas")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("authority.fetch_timeout_secs", 10)
	v.SetDefault("authority.cache_ttl_secs", 300)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Registered so AutomaticEnv can resolve them without a config file.
	v.SetDefault("idp.allow_unverified", false)
	for _, key := range []string{
		"idp.public_key_path", "idp.jwks_url", "idp.issuer",
		"keys.private_key_path", "keys.certificate_path", "keys.ec_private_key_path",
		"authority.url", "authority.ca_cert_path", "authority.client_cert_path",
		"authority.client_key_path", "authority.token_url", "authority.client_id",
		"authority.client_secret",
		"db.url",
	} {
		v.SetDefault(key, "")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Keys.PrivateKeyPath == "" {
		return fmt.Errorf("keys.private_key_path is required")
	}
	if c.IDP.PublicKeyPath == "" && c.IDP.JWKSURL == "" && c.IDP.Issuer == "" && !c.IDP.AllowUnverified {
		return fmt.Errorf("one of idp.public_key_path, idp.jwks_url or idp.issuer is required")
	}
	return nil
}
