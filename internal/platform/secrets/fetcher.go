package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	refPrefix      = "secret://"
	defaultVersion = "latest"
	defaultTTL     = 5 * time.Minute
)

// ErrNotSecretRef indicates the supplied value is not a secret:// reference.
var ErrNotSecretRef = errors.New("secrets: value is not a secret reference")

var clientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references using Google Secret Manager with in-process caching.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool

	logger    *zap.Logger
	projectID string
	ttl       time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

// FetcherOption customises Fetcher construction.
type FetcherOption func(*Fetcher)

// WithLogger attaches a logger used for resolution diagnostics.
func WithLogger(logger *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithCacheTTL overrides how long resolved secrets are reused before refetching.
func WithCacheTTL(ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

// WithClient injects a pre-built Secret Manager client, primarily for tests.
func WithClient(client secretManagerClient) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
			f.ownsClient = false
		}
	}
}

// NewFetcher constructs a Fetcher bound to the given default project.
func NewFetcher(ctx context.Context, projectID string, opts ...FetcherOption) (*Fetcher, error) {
	f := &Fetcher{
		logger:    zap.NewNop(),
		projectID: strings.TrimSpace(projectID),
		ttl:       defaultTTL,
		cache:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.client == nil {
		client, err := clientFactory(ctx)
		if err != nil {
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
		f.client = client
		f.ownsClient = true
	}
	return f, nil
}

// Resolve fetches the secret payload referenced by a secret:// value.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	if f == nil || f.client == nil {
		return "", errors.New("secrets: fetcher not initialised")
	}

	name, err := f.canonicalName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	entry, ok := f.cache[name]
	f.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < f.ttl {
		return entry.value, nil
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if ok {
			// Serve the stale cached value during transient backend outages.
			if code := status.Code(err); code == codes.Unavailable || code == codes.DeadlineExceeded {
				f.logger.Warn("serving stale secret after fetch failure", zap.String("secret", name), zap.Error(err))
				return entry.value, nil
			}
		}
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}

	value := string(resp.GetPayload().GetData())
	f.mu.Lock()
	f.cache[name] = cacheEntry{value: value, fetchedAt: time.Now()}
	f.mu.Unlock()
	return value, nil
}

// Close releases the underlying client when owned by the fetcher.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil || !f.ownsClient {
		return nil
	}
	return f.client.Close()
}

// canonicalName expands secret://NAME[/VERSION] and full resource references into
// projects/<project>/secrets/<name>/versions/<version> form.
func (f *Fetcher) canonicalName(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, refPrefix) {
		return "", ErrNotSecretRef
	}
	rest := strings.Trim(strings.TrimPrefix(ref, refPrefix), "/")
	if rest == "" {
		return "", fmt.Errorf("secrets: empty secret reference %q", ref)
	}

	if strings.HasPrefix(rest, "projects/") {
		if strings.Contains(rest, "/versions/") {
			return rest, nil
		}
		return rest + "/versions/" + defaultVersion, nil
	}

	if f.projectID == "" {
		return "", fmt.Errorf("secrets: no default project for reference %q", ref)
	}

	name := rest
	version := defaultVersion
	if idx := strings.LastIndex(rest, "/"); idx > 0 {
		name = rest[:idx]
		version = rest[idx+1:]
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version), nil
}
