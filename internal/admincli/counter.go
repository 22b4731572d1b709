// ABOUTME: vpn-admin counter command showing the highest configuration ID issued
// ABOUTME: Read-only; the counter is only ever advanced by the allocator

package admincli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCounterCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counter",
		Short: "Show the highest configuration ID issued so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				n, err := s.alloc.Current(ctx)
				if err != nil {
					return storeError("read counter", err)
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), map[string]int64{"counter": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
				return nil
			})
		},
	}
}
