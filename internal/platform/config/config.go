package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultGatewayTimeout = 10 * time.Second
	defaultTokenTTL       = 24 * time.Hour
	defaultTokenIssuer    = "saffron-market"
	defaultGatewayCode    = "gateway"

	secretRefPrefix = "secret://"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Gateway   GatewayConfig
	Auth      AuthConfig
	Events    EventsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// GatewayConfig collects payment gateway endpoints and credentials.
type GatewayConfig struct {
	Provider     string
	MerchantID   string
	RequestURL   string
	VerifyURL    string
	StartPayURL  string
	CallbackURL  string
	Timeout      time.Duration
	StripeAPIKey string
}

// AuthConfig holds the signing secret and lifetime for issued credentials.
type AuthConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	Issuer      string
}

// EventsConfig controls the optional order event publisher.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// Enabled reports whether event publishing is configured.
func (c EventsConfig) Enabled() bool {
	return strings.TrimSpace(c.Topic) != ""
}

// SecretResolver exchanges a secret:// reference for its plaintext value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a plain function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists the configuration keys that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending key names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError reports a secret reference that could not be resolved.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile points Load at a different dotenv file for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies explicit key/value pairs that win over both the dotenv
// file and the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv keeps Load from reading the process environment, so tests
// see only what they pass in.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver enables resolution of secret:// references during Load.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// Load reads configuration following dotenv < OS env < explicit map precedence,
// resolves secret references, and validates required fields.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key, fallback string) string {
		if value, ok := values[key]; ok {
			value = strings.TrimSpace(value)
			if value != "" {
				return value
			}
		}
		return fallback
	}

	resolve := func(key string) (string, error) {
		value := lookup(key, "")
		if !strings.HasPrefix(value, secretRefPrefix) {
			return value, nil
		}
		if options.secret == nil {
			return "", &SecretError{Ref: value, Err: errors.New("secret resolver not configured")}
		}
		resolved, err := options.secret.ResolveSecret(ctx, value)
		if err != nil {
			return "", &SecretError{Ref: value, Err: err}
		}
		return strings.TrimSpace(resolved), nil
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         lookup("PORT", defaultPort),
			ReadTimeout:  lookupDuration(values, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: lookupDuration(values, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  lookupDuration(values, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    lookup("FIRESTORE_PROJECT_ID", lookup("GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: lookup("FIRESTORE_EMULATOR_HOST", ""),
		},
		Gateway: GatewayConfig{
			Provider:    strings.ToLower(lookup("GATEWAY_PROVIDER", defaultGatewayCode)),
			RequestURL:  lookup("GATEWAY_REQUEST_URL", ""),
			VerifyURL:   lookup("GATEWAY_VERIFY_URL", ""),
			StartPayURL: lookup("GATEWAY_STARTPAY_URL", ""),
			CallbackURL: lookup("GATEWAY_CALLBACK_URL", ""),
			Timeout:     lookupDuration(values, "GATEWAY_TIMEOUT", defaultGatewayTimeout),
		},
		Auth: AuthConfig{
			TokenTTL: lookupDuration(values, "AUTH_TOKEN_TTL", defaultTokenTTL),
			Issuer:   lookup("AUTH_TOKEN_ISSUER", defaultTokenIssuer),
		},
		Events: EventsConfig{
			ProjectID: lookup("EVENTS_PROJECT_ID", lookup("GOOGLE_CLOUD_PROJECT", "")),
			Topic:     lookup("EVENTS_TOPIC", ""),
		},
	}

	if cfg.Gateway.MerchantID, err = resolve("GATEWAY_MERCHANT_ID"); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.StripeAPIKey, err = resolve("STRIPE_API_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.Auth.TokenSecret, err = resolve("AUTH_TOKEN_SECRET"); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Firestore.ProjectID) == "" && strings.TrimSpace(cfg.Firestore.EmulatorHost) == "" {
		missing = append(missing, "FIRESTORE_PROJECT_ID")
	}
	if strings.TrimSpace(cfg.Auth.TokenSecret) == "" {
		missing = append(missing, "AUTH_TOKEN_SECRET")
	}
	switch cfg.Gateway.Provider {
	case defaultGatewayCode:
		if strings.TrimSpace(cfg.Gateway.MerchantID) == "" {
			missing = append(missing, "GATEWAY_MERCHANT_ID")
		}
		if strings.TrimSpace(cfg.Gateway.RequestURL) == "" {
			missing = append(missing, "GATEWAY_REQUEST_URL")
		}
		if strings.TrimSpace(cfg.Gateway.VerifyURL) == "" {
			missing = append(missing, "GATEWAY_VERIFY_URL")
		}
		if strings.TrimSpace(cfg.Gateway.StartPayURL) == "" {
			missing = append(missing, "GATEWAY_STARTPAY_URL")
		}
	case "stripe":
		if strings.TrimSpace(cfg.Gateway.StripeAPIKey) == "" {
			missing = append(missing, "STRIPE_API_KEY")
		}
	default:
		missing = append(missing, "GATEWAY_PROVIDER")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// environmentValues merges the three sources in ascending precedence:
// dotenv file, process environment, explicit map.
func environmentValues(options loaderOptions) (map[string]string, error) {
	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			if key, value, ok := strings.Cut(entry, "="); ok && strings.TrimSpace(key) != "" {
				values[strings.TrimSpace(key)] = value
			}
		}
	}

	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

func lookupDuration(values map[string]string, key string, fallback time.Duration) time.Duration {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open env file %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return values, nil
}
