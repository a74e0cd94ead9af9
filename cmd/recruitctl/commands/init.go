package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Resolve the account, bind the signer and bind the contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Initialize(cmd.Context()); err != nil {
				return err
			}
			snap := a.session.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:  %s\n", snap.ID)
			fmt.Fprintf(out, "Network:  %s (chain %s)\n", snap.Network, snap.ChainID)
			fmt.Fprintf(out, "Account:  %s\n", snap.Account)
			fmt.Fprintf(out, "Contract: %s\n", snap.Contract)
			return nil
		},
	}
}
