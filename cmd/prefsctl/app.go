package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/CreativeUnicorns/prefs"
	"github.com/CreativeUnicorns/prefs/cache"
	"github.com/CreativeUnicorns/prefs/config"
	"github.com/CreativeUnicorns/prefs/storage"
)

// openPreferences builds the facade described by cfg and defines the keys
// it declares.
func openPreferences(cfg config.Config) (*prefs.Preferences, prefs.Logger, error) {
	logger := prefs.NewDefaultLogger()
	level, err := prefs.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)

	provider, err := storage.NewProvider(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []prefs.Option{
		prefs.WithProvider(provider),
		prefs.WithLogger(logger),
		prefs.WithCacheTTL(cfg.Cache.TTL),
	}
	c, err := cache.New(cfg.Cache)
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	if c != nil {
		opts = append(opts, prefs.WithCache(c))
	}
	if cfg.Encryption.Enabled {
		enc, err := prefs.NewEncryptionAdapter()
		if err != nil {
			provider.Close()
			if c != nil {
				c.Close()
			}
			return nil, nil, fmt.Errorf("%w: %v", prefs.ErrEncryptionUnavailable, err)
		}
		opts = append(opts, prefs.WithEncryption(enc))
	}

	p, err := prefs.New(opts...)
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	for _, kc := range cfg.Keys {
		key, err := keyFromConfig(kc)
		if err == nil {
			err = p.Define(key)
		}
		if err != nil {
			p.Close()
			return nil, nil, fmt.Errorf("defining %s/%s: %w", kc.Namespace, kc.Name, err)
		}
	}
	return p, logger, nil
}

// withPreferences loads the configuration, opens the facade for the duration
// of fn and closes it afterwards, which flushes pending writes.
func withPreferences(cmd *cobra.Command, fn func(ctx context.Context, p *prefs.Preferences) error) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	p, _, err := openPreferences(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(cmd.Context(), p)
}

func keyFromConfig(kc config.KeyConfig) (prefs.Key, error) {
	scope, err := prefs.ParseScope(kc.Scope)
	if err != nil {
		return prefs.Key{}, err
	}
	kind, err := prefs.ParseKind(kc.Type)
	if err != nil {
		return prefs.Key{}, err
	}
	def, err := parseDefault(kind, kc.Default)
	if err != nil {
		return prefs.Key{}, err
	}
	opts := []prefs.KeyOption{prefs.WithDescription(kc.Description)}
	if kc.Sensitive {
		opts = append(opts, prefs.Sensitive())
	}
	return prefs.NewKey(scope, kc.Namespace, kc.Name, def, opts...), nil
}

// keyFlags describe a key on the command line.
type keyFlags struct {
	scope     string
	typ       string
	def       string
	sensitive bool
}

func (f *keyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.scope, "scope", "user", "preference scope: user or system")
	cmd.Flags().StringVar(&f.typ, "type", "string", "value type: bool, int, string or object")
	cmd.Flags().StringVar(&f.def, "default", "", "default value (JSON for objects)")
	cmd.Flags().BoolVar(&f.sensitive, "sensitive", false, "value is encrypted at rest")
}

// resolve returns the key named by namespace and name. A key declared in the
// config file is used as is unless --type or --default are given.
func (f *keyFlags) resolve(cmd *cobra.Command, p *prefs.Preferences, namespace, name string) (prefs.Key, error) {
	scope, err := prefs.ParseScope(f.scope)
	if err != nil {
		return prefs.Key{}, err
	}
	if !cmd.Flags().Changed("type") && !cmd.Flags().Changed("default") {
		if key, ok := p.Lookup(scope, namespace, name); ok {
			return key, nil
		}
	}
	return keyFromConfig(config.KeyConfig{
		Scope:     f.scope,
		Namespace: namespace,
		Name:      name,
		Type:      f.typ,
		Default:   f.def,
		Sensitive: f.sensitive,
	})
}

func scopeFlag(cmd *cobra.Command) (prefs.Scope, error) {
	s, _ := cmd.Flags().GetString("scope")
	return prefs.ParseScope(s)
}

// parseDefault is parseValue where an empty string means the zero value.
func parseDefault(kind prefs.Kind, s string) (prefs.Value, error) {
	if s != "" {
		return parseValue(kind, s)
	}
	switch kind {
	case prefs.KindBool:
		return prefs.Bool(false), nil
	case prefs.KindInt:
		return prefs.Int(0), nil
	case prefs.KindObject:
		return prefs.Object(map[string]any{}), nil
	}
	return prefs.String(""), nil
}

// parseValue parses command-line text into a Value of kind. Objects are JSON
// objects.
func parseValue(kind prefs.Kind, s string) (prefs.Value, error) {
	switch kind {
	case prefs.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return prefs.Value{}, fmt.Errorf("%w: %q is not a boolean", prefs.ErrInvalidValue, s)
		}
		return prefs.Bool(b), nil
	case prefs.KindInt:
		i, err := strconv.Atoi(s)
		if err != nil {
			return prefs.Value{}, fmt.Errorf("%w: %q is not an integer", prefs.ErrInvalidValue, s)
		}
		return prefs.Int(i), nil
	case prefs.KindObject:
		obj := map[string]any{}
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return prefs.Value{}, fmt.Errorf("%w: object values must be JSON objects: %v", prefs.ErrInvalidValue, err)
		}
		return prefs.Object(obj), nil
	}
	return prefs.String(s), nil
}

func formatValue(v prefs.Value) (string, error) {
	if v.Kind() != prefs.KindObject {
		return v.String(), nil
	}
	data, err := json.Marshal(v.AsObject())
	if err != nil {
		return "", err
	}
	return string(data), nil
}
