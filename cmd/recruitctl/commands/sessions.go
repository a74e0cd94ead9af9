package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func sessionsCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded session initializations from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			recorder, closeRecorder, err := buildRecorder(cmd.Context(), cfg.Ledger)
			if err != nil {
				return err
			}
			defer closeRecorder()
			if recorder == nil {
				return errors.New("ledger.driver 为 none，未记录会话")
			}

			records, err := recorder.ListLatest(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintf(out, "%s  %s  %-10s %s  %s\n",
					rec.InitializedAt.Format("2006-01-02T15:04:05Z07:00"), rec.SessionID, rec.Network, rec.Account, rec.Contract)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of records")
	return cmd
}
