package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CreativeUnicorns/prefs"
	"github.com/CreativeUnicorns/prefs/config"
)

// --- get / set / clear ---

func newGetCmd() *cobra.Command {
	var kf keyFlags
	cmd := &cobra.Command{
		Use:   "get <namespace> <name>",
		Short: "Print a preference, or its default when unset",
		Long: `Print a preference, or its default when unset.

Examples:
  prefsctl get example.com/editor theme
  prefsctl get example.com/editor font-size --type int --default 12
  prefsctl get example.com/editor window --scope system --type object`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPreferences(cmd, func(ctx context.Context, p *prefs.Preferences) error {
				key, err := kf.resolve(cmd, p, args[0], args[1])
				if err != nil {
					return err
				}
				v, err := p.Get(ctx, key)
				if err != nil {
					return err
				}
				out, err := formatValue(v)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	kf.register(cmd)
	return cmd
}

func newSetCmd() *cobra.Command {
	var kf keyFlags
	cmd := &cobra.Command{
		Use:   "set <namespace> <name> <value>",
		Short: "Store a preference",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPreferences(cmd, func(ctx context.Context, p *prefs.Preferences) error {
				key, err := kf.resolve(cmd, p, args[0], args[1])
				if err != nil {
					return err
				}
				v, err := parseValue(key.Default().Kind(), args[2])
				if err != nil {
					return err
				}
				if err := p.Set(ctx, key, v); err != nil {
					return err
				}
				printSuccess("Set %s", key)
				return nil
			})
		},
	}
	kf.register(cmd)
	return cmd
}

func newClearCmd() *cobra.Command {
	var kf keyFlags
	cmd := &cobra.Command{
		Use:   "clear <namespace> <name>",
		Short: "Remove a stored preference so that its default applies again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPreferences(cmd, func(ctx context.Context, p *prefs.Preferences) error {
				key, err := kf.resolve(cmd, p, args[0], args[1])
				if err != nil {
					return err
				}
				if err := p.Clear(ctx, key); err != nil {
					return err
				}
				printSuccess("Cleared %s", key)
				return nil
			})
		},
	}
	kf.register(cmd)
	return cmd
}

func newExistsCmd() *cobra.Command {
	var kf keyFlags
	cmd := &cobra.Command{
		Use:   "exists <namespace> <name>",
		Short: "Print whether a value is stored for a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPreferences(cmd, func(ctx context.Context, p *prefs.Preferences) error {
				key, err := kf.resolve(cmd, p, args[0], args[1])
				if err != nil {
					return err
				}
				ok, err := p.Exists(ctx, key)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
	kf.register(cmd)
	return cmd
}

// --- namespaces ---

func newClearNamespaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-namespace <namespace>",
		Short: "Remove every preference stored in a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFlag(cmd)
			if err != nil {
				return err
			}
			return withPreferences(cmd, func(ctx context.Context, p *prefs.Preferences) error {
				if err := p.ClearNamespace(ctx, prefs.NamespaceKey(scope, args[0])); err != nil {
					return err
				}
				printSuccess("Cleared %s namespace %s", scope, args[0])
				return nil
			})
		},
	}
	cmd.Flags().String("scope", "user", "preference scope: user or system")
	return cmd
}

func newNamespaceExistsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "namespace-exists <namespace>",
		Short: "Print whether a namespace node exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFlag(cmd)
			if err != nil {
				return err
			}
			return withPreferences(cmd, func(ctx context.Context, p *prefs.Preferences) error {
				ok, err := p.NamespaceExists(ctx, prefs.NamespaceKey(scope, args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
	cmd.Flags().String("scope", "user", "preference scope: user or system")
	return cmd
}

// --- flush ---

func newFlushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Write pending changes to durable storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all := !cmd.Flags().Changed("scope")
			scope, err := scopeFlag(cmd)
			if err != nil {
				return err
			}
			return withPreferences(cmd, func(ctx context.Context, p *prefs.Preferences) error {
				if all {
					// Open both roots so that there is something to flush.
					for _, s := range []prefs.Scope{prefs.ScopeUser, prefs.ScopeSystem} {
						if _, err := p.Provider().Root(ctx, s); err != nil {
							return err
						}
					}
					if err := p.FlushAll(ctx); err != nil {
						return err
					}
					printSuccess("Flushed user and system preferences")
					return nil
				}
				if _, err := p.Provider().Root(ctx, scope); err != nil {
					return err
				}
				if err := p.Flush(ctx, scope); err != nil {
					return err
				}
				printSuccess("Flushed %s preferences", scope)
				return nil
			})
		},
	}
	cmd.Flags().String("scope", "user", "flush only this scope: user or system")
	return cmd
}

// --- config ---

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range config.ShowAll(cfg) {
				fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
			}
			for _, k := range cfg.Keys {
				fmt.Fprintf(out, "  %s = %s:%s/%s (%s)\n", colorize(colorBold, "keys"), k.Scope, k.Namespace, k.Name, k.Type)
			}
			return nil
		},
	})
	return configCmd
}
