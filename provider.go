package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"
)

// EnvAppName is the environment variable read for the application name when
// none is given with WithAppName.
const EnvAppName = "PREFS_APP_NAME"

// RootID identifies a root: the application, the scope and, for user roots,
// the user it belongs to.
type RootID struct {
	App   string
	Scope Scope
	User  string
}

func (id RootID) String() string {
	if id.Scope == ScopeSystem {
		return id.App + "/system"
	}
	return id.App + "/user/" + id.User
}

// Provider hands out the system root and the current user's root. Each root
// is created on first use, exactly once, and cached for the provider's lifetime.
type Provider struct {
	backend Backend
	app     string
	user    string
	logger  Logger

	mu       sync.Mutex
	system   Root
	userRoot Root
	closed   bool
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithAppName sets the application name that scopes every root.
func WithAppName(name string) ProviderOption {
	return func(p *Provider) {
		p.app = name
	}
}

// WithUserName overrides the user name derived from the environment.
func WithUserName(name string) ProviderOption {
	return func(p *Provider) {
		p.user = name
	}
}

// WithProviderLogger sets the logger used for root lifecycle messages.
func WithProviderLogger(l Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider creates a Provider over backend. The application name is
// required; it comes from WithAppName or the PREFS_APP_NAME environment
// variable, and its absence is reported as ErrConfiguration.
func NewProvider(backend Backend, opts ...ProviderOption) (*Provider, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: provider requires a backend", ErrConfiguration)
	}
	p := &Provider{
		backend: backend,
		logger:  NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.app == "" {
		p.app = os.Getenv(EnvAppName)
	}
	p.app = normalizeName(p.app)
	if p.app == "" {
		return nil, fmt.Errorf("%w: the %s environment variable must be set to the name of the running application",
			ErrConfiguration, EnvAppName)
	}
	p.user = normalizeName(p.user)
	return p, nil
}

// normalizeName strips spaces and lower-cases, so "My App" and "myapp" share storage.
func normalizeName(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// currentUserName derives the user identity from the host environment.
func currentUserName() (string, error) {
	for _, env := range []string{"USER", "USERNAME"} {
		if name := normalizeName(os.Getenv(env)); name != "" {
			return name, nil
		}
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("%w: cannot determine user name: %v", ErrConfiguration, err)
	}
	if name := normalizeName(u.Username); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("%w: cannot determine user name", ErrConfiguration)
}

// AppName returns the normalized application name.
func (p *Provider) AppName() string {
	return p.app
}

// SystemRoot returns the machine-wide root, creating it on first use.
func (p *Provider) SystemRoot(ctx context.Context) (Root, error) {
	return p.Root(ctx, ScopeSystem)
}

// UserRoot returns the current user's root, creating it on first use.
func (p *Provider) UserRoot(ctx context.Context) (Root, error) {
	return p.Root(ctx, ScopeUser)
}

// Root returns the root for scope. Concurrent first callers all receive the
// same instance; a failed creation is not cached and is retried on next use.
func (p *Provider) Root(ctx context.Context, scope Scope) (Root, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("%w: provider closed", ErrStorageUnavailable)
	}

	slot := &p.userRoot
	if scope == ScopeSystem {
		slot = &p.system
	}
	if *slot != nil {
		return *slot, nil
	}

	id := RootID{App: p.app, Scope: scope}
	if scope == ScopeUser {
		if p.user == "" {
			name, err := currentUserName()
			if err != nil {
				return nil, err
			}
			p.user = name
		}
		id.User = p.user
	}

	root, err := p.backend.Root(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("opening root %s: %w", id, err)
	}
	p.logger.Debug("Opened preferences root", "root", id.String())
	*slot = root
	return root, nil
}

// opened returns the root for scope if it has been created.
func (p *Provider) opened(scope Scope) Root {
	p.mu.Lock()
	defer p.mu.Unlock()
	if scope == ScopeSystem {
		return p.system
	}
	return p.userRoot
}

// Flush flushes the root for scope. A root that was never opened has nothing
// to flush.
func (p *Provider) Flush(ctx context.Context, scope Scope) error {
	root := p.opened(scope)
	if root == nil {
		return nil
	}
	return root.Flush(ctx)
}

// Sync reloads the root for scope from durable storage, if it is open.
func (p *Provider) Sync(ctx context.Context, scope Scope) error {
	root := p.opened(scope)
	if root == nil {
		return nil
	}
	return root.Sync(ctx)
}

// Close closes both roots and then the backend. It is safe to call twice.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, root := range []Root{p.userRoot, p.system} {
		if root == nil {
			continue
		}
		if err := root.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing root %s: %w", root.ID(), err))
		}
	}
	p.userRoot, p.system = nil, nil
	if err := p.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing backend: %w", err))
	}
	return errors.Join(errs...)
}
