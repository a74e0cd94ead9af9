package commands

import (
	"fmt"

	"RecruitChain/internal/web3/contract"

	"github.com/spf13/cobra"
)

func operationsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List the operations of the configured contract interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			iface, err := contract.LoadInterface(cfg.Web3.InterfacePath)
			if err != nil {
				return err
			}
			ops := iface.Operations()
			out := cmd.OutOrStdout()
			for _, name := range iface.OperationNames() {
				method, _ := iface.Method(name)
				mutability := method.StateMutability
				if mutability == "" {
					mutability = "nonpayable"
				}
				fmt.Fprintf(out, "%-24s %s [%s]\n", name, ops[name], mutability)
			}
			return nil
		},
	}
}
