// ABOUTME: vpn-admin user subcommands: create, get, list
// ABOUTME: Passwords are hashed with the configured bcrypt cost before they reach the store

package admincli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/vpn-gateway/internal/password"
	"github.com/2389/vpn-gateway/internal/registry"
)

// UserCreateOptions holds flags for user create.
type UserCreateOptions struct {
	ConfigDataOptions
	PasswordStdin bool
	Password      string
}

// userView is the printable form of a user. The password hash is never shown.
type userView struct {
	Username  string        `json:"username"`
	VPNConfig registry.Data `json:"vpn_config"`
}

func newUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage VPN users",
	}

	createOpts := &UserCreateOptions{ConfigDataOptions: ConfigDataOptions{RootOptions: opts}}
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user",
		Long: `Create a user with a password and an optional VPN configuration.

Examples:
  vpn-admin user create alice --password-stdin < pw.txt
  vpn-admin user create bob --password s3cret --data '{"profile":"office"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(cmd, createOpts, args[0])
		},
	}
	create.Flags().StringVarP(&createOpts.Data, "data", "d", "", "VPN configuration as a JSON object")
	create.Flags().StringVarP(&createOpts.File, "file", "f", "", "read the VPN configuration from a file")
	create.Flags().StringVar(&createOpts.Password, "password", "", "password (visible in shell history)")
	create.Flags().BoolVar(&createOpts.PasswordStdin, "password-stdin", false, "read the password from the first line of stdin")
	create.MarkFlagsMutuallyExclusive("data", "file")
	create.MarkFlagsOneRequired("password", "password-stdin")
	create.MarkFlagsMutuallyExclusive("password", "password-stdin")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <username>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserGet(cmd, opts, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(cmd, opts)
		},
	})

	return cmd
}

func runUserCreate(cmd *cobra.Command, opts *UserCreateOptions, username string) error {
	if err := registry.ValidateUsername(username); err != nil {
		return WrapExitError(ExitCommandError, "invalid username", err)
	}

	secret := opts.Password
	if opts.PasswordStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return WrapExitError(ExitCommandError, "failed to read password from stdin", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		return NewExitError(ExitCommandError, "password must not be empty")
	}

	var vpnConfig registry.Data
	if opts.Data != "" || opts.File != "" {
		var err error
		if vpnConfig, err = readData(cmd, &opts.ConfigDataOptions); err != nil {
			return err
		}
	}

	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		hasher, err := password.NewBcryptHasher(s.cfg.Auth.BcryptCost)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create password hasher", err)
		}
		hash, err := hasher.Hash(secret)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to hash password", err)
		}

		if err := s.registry.CreateUser(ctx, username, hash, vpnConfig); err != nil {
			return storeError("create user", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %s\n", username)
		return nil
	})
}

func runUserGet(cmd *cobra.Command, opts *RootOptions, username string) error {
	return withSession(cmd, opts, func(ctx context.Context, s *session) error {
		user, found, err := s.registry.GetUser(ctx, username)
		if err != nil {
			return storeError("get user", err)
		}
		if !found {
			return NewExitError(ExitFailure, fmt.Sprintf("user %s not found", username))
		}

		out := cmd.OutOrStdout()
		view := userView{Username: user.Username, VPNConfig: user.VPNConfig}
		if opts.Format == "json" {
			return writeJSON(out, view)
		}
		printKV(out, "username", view.Username, "vpn_config", compactJSON(view.VPNConfig))
		return nil
	})
}

func runUserList(cmd *cobra.Command, opts *RootOptions) error {
	return withSession(cmd, opts, func(ctx context.Context, s *session) error {
		users, err := s.registry.ListUsers(ctx)
		if err != nil {
			return storeError("list users", err)
		}

		out := cmd.OutOrStdout()
		if opts.Format == "json" {
			views := make([]userView, 0, len(users))
			for _, u := range users {
				views = append(views, userView{Username: u.Username, VPNConfig: u.VPNConfig})
			}
			return writeJSON(out, views)
		}

		if len(users) == 0 {
			fmt.Fprintln(out, "No users stored.")
			return nil
		}
		for _, u := range users {
			fmt.Fprintln(out, u.Username)
		}
		return nil
	})
}
