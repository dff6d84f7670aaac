package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/converter-module/internal/validator"
)

func newValidateCommand(cc *cliContext) *cobra.Command {
	var (
		name   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Проверить файл без конвертации",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if name == "" {
				name = filepath.Base(path)
			}

			v := validator.New(cc.fs, validator.WithAllowed(cc.cfg.AllowedExtensions))
			outcome := v.Validate(path, name)

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(outcome, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else if outcome.Valid {
				fmt.Fprintf(out, "OK: .%s (%s), %s из %s\n",
					outcome.Extension, outcome.Category, outcome.FileSizeFormatted, outcome.MaxSizeFormatted)
			}

			if !outcome.Valid {
				if outcome.Details != "" {
					return fmt.Errorf("%s: %s (%s)", outcome.Reason, outcome.Error, outcome.Details)
				}
				return fmt.Errorf("%s: %s", outcome.Reason, outcome.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "объявленное имя файла (по умолчанию — имя из пути)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "вывести результат в JSON")
	return cmd
}
