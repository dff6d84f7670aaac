package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/converter-module/internal/convert"
	"github.com/bigkaa/goartstore/converter-module/internal/domain/format"
)

func newFormatsCommand(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats [ext]",
		Short: "Показать поддерживаемые форматы или сведения о формате",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				for _, c := range format.Categories() {
					fmt.Fprintf(out, "%-13s до %-10s %s\n", c, format.FormatSize(format.MaxSizeFor(c)),
						strings.Join(format.Extensions(c), ", "))
				}
				return nil
			}

			info := format.Describe(args[0])
			if !info.Supported {
				return errors.New(info.Error)
			}

			engine := convert.NewEngine(cc.fs, engineConfig(cc.cfg), cliLogger(cmd, cc.cfg))
			targets := engine.Targets(info.Extension)

			fmt.Fprintf(out, "формат:     .%s\n", info.Extension)
			fmt.Fprintf(out, "категория:  %s\n", info.Category)
			fmt.Fprintf(out, "лимит:      %s\n", info.MaxSizeFormatted)
			if len(targets) == 0 {
				fmt.Fprintln(out, "конвертация: нет доступных целевых форматов")
			} else {
				fmt.Fprintf(out, "конвертация: %s\n", strings.Join(targets, ", "))
			}
			return nil
		},
	}
}
