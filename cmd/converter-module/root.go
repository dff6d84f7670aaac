package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/converter-module/internal/config"
	"github.com/bigkaa/goartstore/converter-module/internal/convert"
	"github.com/bigkaa/goartstore/converter-module/internal/service"
	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
	"github.com/bigkaa/goartstore/converter-module/internal/validator"
)

// cliContext — общее состояние подкоманд: файловая система и конфигурация,
// загружаемая перед выполнением любой подкоманды.
type cliContext struct {
	fs  afero.Fs
	cfg *config.Config
}

// newRootCommand собирает дерево команд.
func newRootCommand(fs afero.Fs) *cobra.Command {
	cobra.EnableCommandSorting = false
	cc := &cliContext{fs: fs}

	rootCmd := &cobra.Command{
		Use:          "converter-module",
		Short:        "Сервис конвертации файлов между форматами",
		Version:      config.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("ошибка конфигурации: %w", err)
			}
			cc.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cc)
		},
	}

	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newConvertCommand(cc))
	rootCmd.AddCommand(newValidateCommand(cc))
	rootCmd.AddCommand(newSweepCommand(cc))
	rootCmd.AddCommand(newFormatsCommand(cc))

	return rootCmd
}

// cliLogger — логгер подкоманд CLI: пишет в stderr, чтобы не смешиваться с выводом.
func cliLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return config.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
}

// app — собранные компоненты конвейера.
type app struct {
	incoming   *filestore.FileStore
	converted  *filestore.FileStore
	validator  *validator.Validator
	engine     *convert.Engine
	conversion *service.ConversionService
	sweeper    *service.Sweeper
}

// engineConfig переводит конфигурацию сервиса в параметры движка.
func engineConfig(cfg *config.Config) convert.Config {
	return convert.Config{
		Defaults: convert.Options{
			ImageQuality:  cfg.ImageQuality,
			MaxDimension:  cfg.ImageMaxDimension,
			PDFResolution: cfg.PDFResolution,
		},
		Timeout:            cfg.ConversionTimeout,
		LegacyCopyFallback: cfg.LegacyCopyFallback,
		PdftoppmPath:       cfg.PdftoppmPath,
	}
}

// newApp инициализирует области хранения, валидатор, движок и сервисы.
func newApp(fs afero.Fs, cfg *config.Config, logger *slog.Logger) (*app, error) {
	incoming, err := filestore.New(fs, cfg.IncomingDir)
	if err != nil {
		return nil, fmt.Errorf("инициализация входной области: %w", err)
	}
	converted, err := filestore.New(fs, cfg.ConvertedDir)
	if err != nil {
		return nil, fmt.Errorf("инициализация области результатов: %w", err)
	}

	v := validator.New(fs, validator.WithAllowed(cfg.AllowedExtensions))
	engine := convert.NewEngine(fs, engineConfig(cfg), logger)
	// Задание живёт столько же, сколько его результат на диске
	jobs := service.NewJobRegistry(cfg.JobCacheSize, cfg.FileRetention)

	return &app{
		incoming:   incoming,
		converted:  converted,
		validator:  v,
		engine:     engine,
		conversion: service.NewConversionService(incoming, converted, v, engine, jobs, logger),
		sweeper: service.NewSweeper([]service.Area{
			{Name: "incoming", Store: incoming},
			{Name: "converted", Store: converted},
		}, cfg.CleanupInterval, cfg.FileRetention, logger),
	}, nil
}
