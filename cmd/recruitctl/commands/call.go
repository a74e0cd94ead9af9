package commands

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

func callCmd(flags *globalFlags) *cobra.Command {
	var send bool
	cmd := &cobra.Command{
		Use:   "call <operation> [args...]",
		Short: "Initialize the session and invoke a contract operation",
		Args:  cobra.MinimumNArgs(1),
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

			ctx := cmd.Context()
			if err := a.session.Initialize(ctx); err != nil {
				return err
			}
			handle, err := a.session.Contract()
			if err != nil {
				return err
			}
			method := args[0]
			callArgs, err := handle.Interface().ParseArgs(method, args[1:])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if send {
				tx, err := handle.Transact(ctx, method, callArgs...)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Submitted: %s\n", tx.Hash().Hex())
				return nil
			}
			results, err := handle.Call(ctx, method, callArgs...)
			if err != nil {
				return err
			}
			printResults(out, results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&send, "send", false, "submit a signed transaction instead of a read-only call")
	return cmd
}

func printResults(out io.Writer, results []any) {
	for i, value := range results {
		fmt.Fprintf(out, "[%d] %s\n", i, formatValue(value))
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case *big.Int:
		return v.String()
	case common.Address:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case [32]byte:
		return hexutil.Encode(v[:])
	default:
		return fmt.Sprintf("%v", v)
	}
}
