// ABOUTME: Root command for vpn-admin, the offline registry administration CLI
// ABOUTME: Opens the configured store directly and exposes config, user, and counter commands

package admincli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/2389/vpn-gateway/internal/allocator"
	"github.com/2389/vpn-gateway/internal/config"
	"github.com/2389/vpn-gateway/internal/kv"
	"github.com/2389/vpn-gateway/internal/registry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool

	// open builds the session used by a command. Replaced in tests.
	open func(ctx context.Context, opts *RootOptions) (*session, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// session bundles what a command needs to talk to the store.
type session struct {
	cfg      *config.Config
	store    kv.Store
	alloc    *allocator.Allocator
	registry *registry.Registry
	closer   func() error
}

func (s *session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// NewRootCommand creates the root command for vpn-admin.
func NewRootCommand(defaultConfigPath string) *cobra.Command {
	return newRootCommand(&RootOptions{ConfigPath: defaultConfigPath, open: openSession})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vpn-admin",
		Short: "Administer the VPN configuration registry",
		Long: `vpn-admin reads and writes the VPN configuration registry directly
through the configured key-value store, without going through the HTTP API.

It uses the same gateway.yaml as vpn-gateway serve.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "path to gateway config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log store activity to stderr")

	cmd.AddCommand(newConfigCommand(opts))
	cmd.AddCommand(newUserCommand(opts))
	cmd.AddCommand(newCounterCommand(opts))

	return cmd
}

// openSession loads the config file and wires store, allocator, and registry
// the same way the gateway does.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.Default()
	}

	store, err := kv.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s, err := newSession(ctx, cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

func newSession(ctx context.Context, cfg *config.Config, store kv.Store, logger *slog.Logger) (*session, error) {
	alloc, err := allocator.New(ctx, store,
		allocator.WithMaxAttempts(cfg.Allocator.MaxAttempts),
		allocator.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing allocator: %w", err)
	}

	reg := registry.New(store, alloc,
		registry.WithLogger(logger),
		registry.WithMaxAttempts(cfg.Allocator.MaxAttempts),
	)

	return &session{cfg: cfg, store: store, alloc: alloc, registry: reg, closer: store.Close}, nil
}

// withSession opens a session, runs fn against it, and closes the store.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := opts.open(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open registry", err)
	}
	defer s.Close()

	return fn(ctx, s)
}
