package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryabkov82/gstr2b-merger/internal/config"
	"github.com/ryabkov82/gstr2b-merger/internal/inputset"
	"github.com/ryabkov82/gstr2b-merger/internal/merger"
)

// errReported ошибка уже выведена в JSON-результате
var errReported = errors.New("объединение не выполнено")

type mergeOptions struct {
	output         string
	rotateForward  int
	rotateBackward int
}

func newMergeCmd() *cobra.Command {
	opts := &mergeOptions{}
	cmd := &cobra.Command{
		Use:   "merge [file.xlsx...]",
		Short: "Объединить книги в указанном порядке",
		Long: `Файлы добавляются в порядке аргументов, повтор имени игнорируется.
--rotate-forward переносит последний файл в начало, --rotate-backward первый в конец.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "результирующий файл (по умолчанию "+config.DefaultOutputPath+")")
	cmd.Flags().IntVar(&opts.rotateForward, "rotate-forward", 0, "сколько раз перенести последний файл в начало")
	cmd.Flags().IntVar(&opts.rotateBackward, "rotate-backward", 0, "сколько раз перенести первый файл в конец")
	return cmd
}

func runMerge(cmd *cobra.Command, opts *mergeOptions, args []string) error {
	start := time.Now()
	fail := func(format string, err error) error {
		if e := emitJSON(cmd.OutOrStdout(), Output{
			Success:  false,
			Error:    fmt.Sprintf(format, err),
			Duration: time.Since(start).String(),
		}); e != nil {
			return e
		}
		return errReported
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fail("Ошибка конфигурации: %v", err)
	}
	applyVerbose(cfg)
	if opts.output != "" {
		cfg.OutputPath = filepath.Clean(opts.output)
	}

	files, err := loadInputs(args)
	if err != nil {
		return fail("Ошибка конфигурации: %v", err)
	}
	for i := 0; i < opts.rotateForward; i++ {
		files.RotateForward()
	}
	for i := 0; i < opts.rotateBackward; i++ {
		files.RotateBackward()
	}
	logger.Info("порядок файлов", zap.Strings("files", files.Names()))

	m := merger.NewWorkbookMerger(logger)
	m.Progress = func(e merger.ProgressEvent) {
		logger.Debug("прогресс", zap.Int("percent", e.Percent), zap.String("sheet", e.Stage))
	}
	res, err := m.Merge(cfg.Sheets, files.Snapshot())
	if err != nil {
		return fail("Ошибка объединения: %v", err)
	}

	if err := os.WriteFile(cfg.OutputPath, res.Data, 0644); err != nil {
		return fail("Ошибка сохранения файла: %v", err)
	}

	out := Output{
		Success:    true,
		OutputFile: cfg.OutputPath,
		RowCount:   res.RowCount(),
		Duration:   time.Since(start).String(),
	}
	for _, s := range res.Sheets {
		out.Sheets = append(out.Sheets, SheetOutput{Name: s.Name, HeaderSource: s.HeaderSource, Rows: s.Rows})
	}
	return emitJSON(cmd.OutOrStdout(), out)
}

// loadInputs читает файлы в набор под их базовыми именами.
func loadInputs(paths []string) (*inputset.Set, error) {
	files := inputset.New()
	for _, path := range paths {
		if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
			return nil, fmt.Errorf("файл %s: поддерживается только формат .xlsx", path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
		}
		name := filepath.Base(path)
		if !files.Add(name, content) {
			logger.Warn("файл с таким именем уже добавлен, пропуск", zap.String("file", path))
		}
	}
	return files, nil
}
