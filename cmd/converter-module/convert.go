package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/converter-module/internal/convert"
	"github.com/bigkaa/goartstore/converter-module/internal/service"
	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
)

func newConvertCommand(cc *cliContext) *cobra.Command {
	var (
		outDir string
		opts   convert.Options
	)

	cmd := &cobra.Command{
		Use:   "convert <input> <target>",
		Short: "Конвертировать локальный файл",
		Long: `Копирует файл во входную область и выполняет тот же конвейер, что и HTTP API:
валидация, конвертация, удаление входного файла. Результат остаётся в области
результатов или переносится в директорию -o.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, target := args[0], args[1]
			a, err := newApp(cc.fs, cc.cfg, cliLogger(cmd, cc.cfg))
			if err != nil {
				return err
			}

			src, err := cc.fs.Open(input)
			if err != nil {
				return fmt.Errorf("открытие %s: %w", input, err)
			}
			originalName := filepath.Base(input)
			saved, err := a.incoming.Save(src, originalName)
			_ = src.Close()
			if err != nil {
				return err
			}

			job, convErr := a.conversion.Convert(cmd.Context(), service.ConvertParams{
				FileName:     saved.Name,
				OriginalName: originalName,
				TargetFormat: target,
				Options:      opts,
			})
			if convErr != nil {
				return convErr
			}

			resultPath := a.converted.Path(job.OutputName)
			if outDir != "" {
				resultPath, err = moveResult(cc.fs, a.converted, job.OutputName, outDir)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s → %s: %s (%s, %d мс, правило %s)\n",
				job.OriginalName, job.TargetFormat, resultPath,
				humanize.IBytes(uint64(job.OutputSize)), job.DurationMs, job.Rule)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", "", "директория для результата (по умолчанию — область результатов)")
	cmd.Flags().IntVar(&opts.ImageQuality, "quality", 0, "качество JPEG/WebP, 1-100")
	cmd.Flags().IntVar(&opts.PDFResolution, "resolution", 0, "разрешение растеризации PDF, dpi")
	cmd.Flags().IntVar(&opts.MaxDimension, "max-dimension", 0, "максимальная сторона изображения, px")
	return cmd
}

// moveResult переносит результат из области результатов в dir под исходным именем.
func moveResult(fs afero.Fs, converted *filestore.FileStore, name, dir string) (string, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("создание директории %s: %w", dir, err)
	}

	src, err := converted.Open(name)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dest := filepath.Join(dir, filestore.OriginalName(name))
	out, err := fs.Create(dest)
	if err != nil {
		return "", fmt.Errorf("создание %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("запись %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("запись %s: %w", dest, err)
	}

	if _, err := converted.Delete(name); err != nil {
		return "", err
	}
	return dest, nil
}
