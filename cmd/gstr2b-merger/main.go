package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ryabkov82/gstr2b-merger/internal/config"
)

var (
	configPath string
	verbose    bool
	logger     *zap.Logger
	// logLevel общий для логгера; verbose из конфигурации включает Debug после загрузки файла
	logLevel = zap.NewAtomicLevel()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gstr2b-merger",
		Short: "Объединение книг GSTR-2B в одну",
		Long: `gstr2b-merger объединяет листы B2B, B2BA, B2B-CDNR и B2B-CDNRA
из нескольких книг xlsx: шапка берётся из первого файла с листом,
строки данных добавляются из всех файлов в заданном порядке.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zapConfig := zap.NewProductionConfig()
			logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
			if verbose {
				logLevel.SetLevel(zapcore.DebugLevel)
			}
			zapConfig.Level = logLevel
			var err error
			logger, err = zapConfig.Build()
			if err != nil {
				return fmt.Errorf("ошибка инициализации логгера: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "файл конфигурации TOML")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "подробный лог")

	rootCmd.AddCommand(newMergeCmd(), newServeCmd())
	return rootCmd
}

// applyVerbose включает подробный лог, если он задан в конфигурации; флаг -v действует всегда.
func applyVerbose(cfg *config.Config) {
	if cfg.Verbose {
		logLevel.SetLevel(zapcore.DebugLevel)
	}
}

type SheetOutput struct {
	Name         string `json:"name"`
	HeaderSource string `json:"header_source,omitempty"`
	Rows         int    `json:"rows"`
}

type Output struct {
	Success    bool          `json:"success"`
	OutputFile string        `json:"output_file,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   string        `json:"duration"`
	RowCount   int64         `json:"row_count,omitempty"`
	Sheets     []SheetOutput `json:"sheets,omitempty"`
}

func emitJSON(w io.Writer, out Output) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("ошибка вывода JSON: %w", err)
	}
	return nil
}
