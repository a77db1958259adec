package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ListenAddr is the host:port the HTTP surface binds to.
	ListenAddr string `koanf:"listen_addr" validate:"required"`

	// UIOrigin is the packaged UI origin control messages must carry.
	UIOrigin string `koanf:"ui_origin" validate:"required"`

	// DBPath is the key/value store backing settings and ledger snapshots.
	DBPath string `koanf:"db_path" validate:"required"`

	// AllowDBPath is the persistent allowlist index.
	AllowDBPath string `koanf:"allow_db_path" validate:"required"`

	// ResolverServers is a list of upstream DNS servers in ip:port format,
	// tried in order when resolving canonical names.
	ResolverServers []string `koanf:"resolver_servers" validate:"required,dive,ip_port"`

	// ResolverTimeoutMS bounds each upstream CNAME exchange.
	ResolverTimeoutMS int `koanf:"resolver_timeout_ms" validate:"required,gte=100"`

	// TrackerSuffix is the canonical-name suffix that marks a cloaked tracker.
	TrackerSuffix string `koanf:"tracker_suffix" validate:"required"`

	// CNAMECacheSize bounds the resolver's verdict cache.
	CNAMECacheSize int `koanf:"cname_cache_size" validate:"required,gte=1"`

	// AllowCacheSize bounds the allowlist membership cache.
	AllowCacheSize int `koanf:"allow_cache_size" validate:"required,gte=1"`

	// BloomFPRate is the target false-positive rate for the allowlist prefilter.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"required,gt=0,lt=1"`
}

// DEFAULT_APP_CONFIG defines the default application configuration for the
// guard daemon.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:               "prod",
	LogLevel:          "info",
	ListenAddr:        "127.0.0.1:8479",
	UIOrigin:          "moz-extension://guard-ui",
	DBPath:            "/var/lib/probegate/guard.db",
	AllowDBPath:       "/var/lib/probegate/allow.db",
	ResolverServers:   []string{"1.1.1.1:53", "1.0.0.1:53"},
	ResolverTimeoutMS: 5000,
	TrackerSuffix:     "online-metrix.net",
	CNAMECacheSize:    512,
	AllowCacheSize:    1000,
	BloomFPRate:       0.01,
}

// validIPPort validates whether the provided field value is a valid IP address
// and port combination in "IP:Port" format.
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// envLoader loads environment variables with the prefix "PROBEGATE_",
// lowercasing keys and splitting list values on spaces or commas.
// It can be swapped in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "PROBEGATE_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "PROBEGATE_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG into the Koanf instance using the
// structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation wires the custom "ip_port" rule into the validator.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_port", validIPPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
