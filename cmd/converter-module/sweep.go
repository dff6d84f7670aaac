package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newSweepCommand(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Выполнить один цикл очистки входной области и области результатов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cc.fs, cc.cfg, cliLogger(cmd, cc.cfg))
			if err != nil {
				return err
			}

			res := a.sweeper.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "проверено: %d, удалено: %d, ошибок: %d, освобождено: %s (срок хранения %s)\n",
				res.Scanned, res.Deleted, res.Errors,
				humanize.IBytes(uint64(res.FreedBytes)), a.sweeper.Retention())
			if res.Errors > 0 {
				return fmt.Errorf("очистка завершена с ошибками: %d", res.Errors)
			}
			return nil
		},
	}
}
