// ABOUTME: vpn-admin config subcommands: list, get, create, update, delete
// ABOUTME: Config data is given as a JSON object on the command line or from a file

package admincli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/2389/vpn-gateway/internal/registry"
)

// ConfigDataOptions holds flags for commands that take config data.
type ConfigDataOptions struct {
	*RootOptions
	Data string
	File string
}

func newConfigCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stored VPN configurations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigList(cmd, opts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd, opts, args[0])
		},
	})

	createOpts := &ConfigDataOptions{RootOptions: opts}
	create := &cobra.Command{
		Use:   "create",
		Short: "Store a new configuration and print its ID",
		Long: `Store a new configuration and print its ID.

Examples:
  vpn-admin config create --data '{"server":"vpn.example.com","port":1194}'
  vpn-admin config create --file ./client.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigCreate(cmd, createOpts)
		},
	}
	addDataFlags(create, createOpts)
	cmd.AddCommand(create)

	updateOpts := &ConfigDataOptions{RootOptions: opts}
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace an existing configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigUpdate(cmd, updateOpts, args[0])
		},
	}
	addDataFlags(update, updateOpts)
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigDelete(cmd, opts, args[0])
		},
	})

	return cmd
}

func addDataFlags(cmd *cobra.Command, opts *ConfigDataOptions) {
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "configuration as a JSON object")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the JSON object from a file (- for stdin)")
	cmd.MarkFlagsOneRequired("data", "file")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid config id %q: must be an integer", s))
	}
	return id, nil
}

// readData decodes the --data or --file argument into a JSON object.
func readData(cmd *cobra.Command, opts *ConfigDataOptions) (registry.Data, error) {
	raw := []byte(opts.Data)
	if opts.File != "" {
		var err error
		if opts.File == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(opts.File)
		}
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read config data", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data registry.Data
	if err := dec.Decode(&data); err != nil || data == nil {
		return nil, NewExitError(ExitCommandError, "config data must be a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, NewExitError(ExitCommandError, "config data must be a single JSON object")
	}
	return data, nil
}

// storeError maps registry failures to exit codes.
func storeError(action string, err error) error {
	switch {
	case errors.Is(err, registry.ErrInvalidUsername), errors.Is(err, registry.ErrAlreadyExists):
		return WrapExitError(ExitFailure, "failed to "+action, err)
	default:
		return WrapExitError(ExitCommandError, "failed to "+action, err)
	}
}

func runConfigList(cmd *cobra.Command, opts *RootOptions) error {
	return withSession(cmd, opts, func(ctx context.Context, s *session) error {
		configs, err := s.registry.ListConfigs(ctx)
		if err != nil {
			return storeError("list configurations", err)
		}

		out := cmd.OutOrStdout()
		if opts.Format == "json" {
			byID := make(map[string]registry.Data, len(configs))
			for id, data := range configs {
				byID[strconv.FormatInt(id, 10)] = data
			}
			return writeJSON(out, byID)
		}

		if len(configs) == 0 {
			fmt.Fprintln(out, "No configurations stored.")
			return nil
		}
		for _, id := range sortedIDs(configs) {
			fmt.Fprintf(out, "%d\t%s\n", id, compactJSON(configs[id]))
		}
		return nil
	})
}

func runConfigGet(cmd *cobra.Command, opts *RootOptions, arg string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	return withSession(cmd, opts, func(ctx context.Context, s *session) error {
		cfg, found, err := s.registry.GetConfig(ctx, id)
		if err != nil {
			return storeError("get configuration", err)
		}
		if !found {
			return NewExitError(ExitFailure, fmt.Sprintf("configuration %d not found", id))
		}

		out := cmd.OutOrStdout()
		if opts.Format == "json" {
			return writeJSON(out, map[string]any{"config_id": cfg.ID, "config_data": cfg.Data})
		}
		printKV(out, "id", strconv.FormatInt(cfg.ID, 10), "data", compactJSON(cfg.Data))
		return nil
	})
}

func runConfigCreate(cmd *cobra.Command, opts *ConfigDataOptions) error {
	data, err := readData(cmd, opts)
	if err != nil {
		return err
	}
	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		id, err := s.registry.CreateConfig(ctx, data)
		if err != nil {
			return storeError("create configuration", err)
		}

		out := cmd.OutOrStdout()
		if opts.Format == "json" {
			return writeJSON(out, map[string]any{"config_id": id})
		}
		fmt.Fprintf(out, "Created configuration %d\n", id)
		return nil
	})
}

func runConfigUpdate(cmd *cobra.Command, opts *ConfigDataOptions, arg string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	data, err := readData(cmd, opts)
	if err != nil {
		return err
	}
	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		updated, err := s.registry.UpdateConfig(ctx, id, data)
		if err != nil {
			return storeError("update configuration", err)
		}
		if !updated {
			return NewExitError(ExitFailure, fmt.Sprintf("configuration %d not found", id))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated configuration %d\n", id)
		return nil
	})
}

func runConfigDelete(cmd *cobra.Command, opts *RootOptions, arg string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	return withSession(cmd, opts, func(ctx context.Context, s *session) error {
		deleted, err := s.registry.DeleteConfig(ctx, id)
		if err != nil {
			return storeError("delete configuration", err)
		}
		if !deleted {
			return NewExitError(ExitFailure, fmt.Sprintf("configuration %d not found", id))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted configuration %d\n", id)
		return nil
	})
}
