package merger

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ryabkov82/gstr2b-merger/internal/config"
	"github.com/ryabkov82/gstr2b-merger/internal/inputset"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// WorkbookMerger собирает итоговую книгу целиком в памяти.
// Для каждого листа шапка берётся из первого файла, где этот лист есть,
// строки данных добавляются из всех файлов в порядке входного списка.
type WorkbookMerger struct {
	BaseMerger
	Logger   *zap.Logger
	Progress func(ProgressEvent)
}

type openedInput struct {
	name string
	file *excelize.File
}

func NewWorkbookMerger(logger *zap.Logger) *WorkbookMerger {
	if logger == nil {
		logger = zap.NewNop()
	}
	wm := &WorkbookMerger{Logger: logger}
	wm.BaseMerger.Init()
	return wm
}

func (wm *WorkbookMerger) Merge(sheets []config.SheetConfig, inputs []inputset.SourceFile) (*Result, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputFiles
	}
	if len(sheets) == 0 {
		return nil, ErrNoSheetConfigs
	}

	// Каждый файл открывается один раз на всё объединение
	opened, err := openInputs(inputs)
	if err != nil {
		return nil, err
	}
	defer closeInputs(opened)

	out := excelize.NewFile()
	defer out.Close()

	if err := prepareOutputSheets(out, sheets); err != nil {
		return nil, &WriteError{Err: err}
	}

	res := &Result{Sheets: make([]SheetSummary, 0, len(sheets))}
	for i, sheet := range sheets {
		summary, err := wm.mergeSheet(out, sheet, opened)
		if err != nil {
			return nil, err
		}
		res.Sheets = append(res.Sheets, summary)

		wm.Logger.Info("лист объединён",
			zap.String("sheet", summary.Name),
			zap.String("header_source", summary.HeaderSource),
			zap.Int("sources", len(summary.Sources)),
			zap.Int("rows", summary.Rows))
		reportProgress(wm.Progress, (i+1)*100/len(sheets), sheet.Name)
	}

	buf, err := out.WriteToBuffer()
	if err != nil {
		return nil, &WriteError{Err: err}
	}
	res.Data = buf.Bytes()

	return res, nil
}

func openInputs(inputs []inputset.SourceFile) ([]openedInput, error) {
	opened := make([]openedInput, 0, len(inputs))
	for _, in := range inputs {
		f, err := excelize.OpenReader(bytes.NewReader(in.Content))
		if err != nil {
			closeInputs(opened)
			return nil, &ReadError{Name: in.Name, Err: err}
		}
		opened = append(opened, openedInput{name: in.Name, file: f})
	}
	return opened, nil
}

func closeInputs(opened []openedInput) {
	for _, in := range opened {
		_ = in.file.Close()
	}
}

// prepareOutputSheets создаёт листы в порядке конфигурации; первый лист активный.
func prepareOutputSheets(out *excelize.File, sheets []config.SheetConfig) error {
	if err := out.SetSheetName(out.GetSheetName(0), sheets[0].Name); err != nil {
		return fmt.Errorf("ошибка переименования листа %s: %w", sheets[0].Name, err)
	}
	for _, sheet := range sheets[1:] {
		if _, err := out.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("ошибка создания листа %s: %w", sheet.Name, err)
		}
	}
	out.SetActiveSheet(0)
	return nil
}

// hasSheet ищет лист по точному совпадению имени (excelize сравнивает без учёта регистра).
func hasSheet(f *excelize.File, name string) bool {
	for _, s := range f.GetSheetList() {
		if s == name {
			return true
		}
	}
	return false
}

func (wm *WorkbookMerger) mergeSheet(out *excelize.File, sheet config.SheetConfig, inputs []openedInput) (SheetSummary, error) {
	wm.BaseMerger.Init()
	summary := SheetSummary{Name: sheet.Name}

	headerCopied := false
	nextRow := sheet.HeaderRows + 1

	for _, in := range inputs {
		if !hasSheet(in.file, sheet.Name) {
			wm.Logger.Debug("лист отсутствует в файле, пропуск",
				zap.String("sheet", sheet.Name), zap.String("file", in.name))
			continue
		}

		rows, err := readSheetRows(in.file, sheet.Name)
		if err != nil {
			return summary, &ReadError{Name: in.name, Err: err}
		}

		if !headerCopied {
			if err := wm.copyHeader(out, in, sheet, rows); err != nil {
				return summary, err
			}
			headerCopied = true
			summary.HeaderSource = in.name
		}

		appended, err := wm.appendRows(out, in, sheet, rows, nextRow)
		if err != nil {
			return summary, err
		}
		nextRow += appended
		summary.Rows += appended
		summary.Sources = append(summary.Sources, in.name)
	}

	if err := wm.applyColWidths(out, sheet.Name); err != nil {
		return summary, &WriteError{Err: err}
	}
	return summary, nil
}

// copyHeader переносит строки 1..HeaderRows со значениями и стилями, затем все объединённые диапазоны листа.
func (wm *WorkbookMerger) copyHeader(out *excelize.File, in openedInput, sheet config.SheetConfig, rows [][]string) error {
	mergeCells, err := in.file.GetMergeCells(sheet.Name)
	if err != nil {
		return &ReadError{Name: in.name, Err: err}
	}

	if sheet.HeaderRows > 0 {
		maxCol, err := headerWidth(in.file, sheet, rows, mergeCells)
		if err != nil {
			return &ReadError{Name: in.name, Err: err}
		}

		styles := newStyleCopier(in.file, out)
		areas := newMergedAreas(mergeCells)
		for r := 1; r <= sheet.HeaderRows; r++ {
			var row []string
			if r <= len(rows) {
				row = rows[r-1]
			}
			for c := 1; c <= maxCol; c++ {
				cell, err := excelize.CoordinatesToCellName(c, r)
				if err != nil {
					return &WriteError{Err: err}
				}
				raw := ""
				if c <= len(row) {
					raw = row[c-1]
				}
				if err := wm.copyHeaderCell(out, in, styles, sheet.Name, cell, c, raw, areas.covered(c, r)); err != nil {
					return err
				}
			}
		}
	}

	for _, mc := range mergeCells {
		if err := out.MergeCell(sheet.Name, mc.GetStartAxis(), mc.GetEndAxis()); err != nil {
			return &WriteError{Err: fmt.Errorf("ошибка объединения ячеек %s:%s: %w", mc.GetStartAxis(), mc.GetEndAxis(), err)}
		}
	}
	return nil
}

func (wm *WorkbookMerger) copyHeaderCell(out *excelize.File, in openedInput, styles *styleCopier, sheet, cell string, col int, raw string, covered bool) error {
	v, err := readCell(in.file, sheet, cell, raw, covered)
	if err != nil {
		return &ReadError{Name: in.name, Err: err}
	}
	if err := writeCell(out, sheet, cell, v); err != nil {
		return &WriteError{Err: err}
	}
	if !v.empty() {
		wm.trackWidth(col, v.text())
	}

	styleID, err := styles.styleID(sheet, cell)
	if err != nil {
		var we *WriteError
		if errors.As(err, &we) {
			return err
		}
		return &ReadError{Name: in.name, Err: err}
	}
	if styleID == 0 {
		return nil
	}
	if err := out.SetCellStyle(sheet, cell, cell, styleID); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// appendRows дописывает строки после шапки начиная с nextRow, только значения.
// Возвращает число занятых строк.
func (wm *WorkbookMerger) appendRows(out *excelize.File, in openedInput, sheet config.SheetConfig, rows [][]string, nextRow int) (int, error) {
	mergeCells, err := in.file.GetMergeCells(sheet.Name)
	if err != nil {
		return 0, &ReadError{Name: in.name, Err: err}
	}
	areas := newMergedAreas(mergeCells)

	appended := 0
	for r := sheet.HeaderRows; r < len(rows); r++ {
		dstRow := nextRow + appended
		for c, raw := range rows[r] {
			srcCell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return appended, &ReadError{Name: in.name, Err: err}
			}
			v, err := readCell(in.file, sheet.Name, srcCell, raw, areas.covered(c+1, r+1))
			if err != nil {
				return appended, &ReadError{Name: in.name, Err: err}
			}
			if v.empty() {
				continue
			}
			dstCell, err := excelize.CoordinatesToCellName(c+1, dstRow)
			if err != nil {
				return appended, &WriteError{Err: err}
			}
			if err := writeCell(out, sheet.Name, dstCell, v); err != nil {
				return appended, &WriteError{Err: err}
			}
			wm.trackWidth(c+1, v.text())
		}
		appended++
	}
	return appended, nil
}

// headerWidth число колонок шапки: максимум из длины строк шапки,
// размерности листа и правых границ объединённых диапазонов.
func headerWidth(f *excelize.File, sheet config.SheetConfig, rows [][]string, mergeCells []excelize.MergeCell) (int, error) {
	maxCol := 0
	for r := 0; r < sheet.HeaderRows && r < len(rows); r++ {
		maxCol = max(maxCol, len(rows[r]))
	}

	dim, err := f.GetSheetDimension(sheet.Name)
	if err != nil {
		return 0, err
	}
	if dim != "" {
		parts := strings.Split(dim, ":")
		if col, _, err := excelize.CellNameToCoordinates(parts[len(parts)-1]); err == nil {
			maxCol = max(maxCol, col)
		}
	}

	for _, mc := range mergeCells {
		col, row, err := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err != nil {
			continue
		}
		startCol, startRow, err := excelize.CellNameToCoordinates(mc.GetStartAxis())
		if err != nil {
			continue
		}
		if startRow <= sheet.HeaderRows || row <= sheet.HeaderRows {
			maxCol = max(maxCol, col, startCol)
		}
	}
	return maxCol, nil
}
