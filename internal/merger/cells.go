package merger

import (
	"fmt"
	"strings"

	"github.com/tiendc/go-deepcopy"
	"github.com/xuri/excelize/v2"
)

// cellValue значение ячейки в исходном виде, без форматирования и приведения типов.
type cellValue struct {
	typ     excelize.CellType
	raw     string
	formula string
}

func (v cellValue) empty() bool {
	return v.raw == "" && v.formula == ""
}

// text строковое представление для расчёта ширины колонки
func (v cellValue) text() string {
	switch {
	case v.formula != "":
		return "=" + v.formula
	case v.typ == excelize.CellTypeBool:
		if parseBool(v.raw) {
			return "TRUE"
		}
		return "FALSE"
	}
	return v.raw
}

func parseBool(raw string) bool {
	return raw == "1" || strings.EqualFold(raw, "true")
}

// readSheetRows читает все строки листа с сырыми значениями.
// Пустые строки в середине сохраняются, хвостовые пустые отбрасываются.
func readSheetRows(f *excelize.File, sheet string) ([][]string, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, err
	}

	var (
		result [][]string
		last   int
	)
	for rows.Next() {
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, cols)
		if len(cols) > 0 {
			last = len(result)
		}
	}
	if err := rows.Error(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return result[:last], nil
}

// mergedAreas объединённые диапазоны листа в координатах: колонка и строка начала, колонка и строка конца.
type mergedAreas [][4]int

func newMergedAreas(mergeCells []excelize.MergeCell) mergedAreas {
	areas := make(mergedAreas, 0, len(mergeCells))
	for _, mc := range mergeCells {
		c1, r1, err := excelize.CellNameToCoordinates(mc.GetStartAxis())
		if err != nil {
			continue
		}
		c2, r2, err := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err != nil {
			continue
		}
		areas = append(areas, [4]int{min(c1, c2), min(r1, r2), max(c1, c2), max(r1, r2)})
	}
	return areas
}

// covered ячейка лежит внутри объединённого диапазона, но не в его левом верхнем углу.
func (m mergedAreas) covered(col, row int) bool {
	for _, a := range m {
		if col < a[0] || col > a[2] || row < a[1] || row > a[3] {
			continue
		}
		return col != a[0] || row != a[1]
	}
	return false
}

// readCell дочитывает формулу и тип ячейки к сырому значению из строки.
// Для скрытых ячеек объединённого диапазона excelize отдаёт формулу и тип левой верхней ячейки,
// поэтому у них остаётся только сырое значение.
func readCell(f *excelize.File, sheet, cell, raw string, covered bool) (cellValue, error) {
	v := cellValue{raw: raw}
	if covered {
		return v, nil
	}

	formula, err := f.GetCellFormula(sheet, cell)
	if err != nil {
		return v, err
	}
	v.formula = formula
	if v.empty() {
		return v, nil
	}

	v.typ, err = f.GetCellType(sheet, cell)
	if err != nil {
		return v, err
	}
	return v, nil
}

// writeCell записывает значение тем же типом, каким оно хранилось в исходной книге.
func writeCell(f *excelize.File, sheet, cell string, v cellValue) error {
	if v.formula != "" {
		return f.SetCellFormula(sheet, cell, v.formula)
	}
	if v.raw == "" {
		return nil
	}

	switch v.typ {
	case excelize.CellTypeBool:
		return f.SetCellBool(sheet, cell, parseBool(v.raw))
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return f.SetCellStr(sheet, cell, v.raw)
	case excelize.CellTypeError, excelize.CellTypeDate:
		// в excelize нет записи ячеек с t="d" и литералов ошибок, сохраняем их текстом
		return f.SetCellStr(sheet, cell, v.raw)
	default:
		// числа пишутся исходным текстом, без разбора в float
		return f.SetCellDefault(sheet, cell, v.raw)
	}
}

// styleCopier переносит стили ячеек из одной книги в другую.
// ID стилей у книг свои, поэтому кеш действует в пределах одной исходной книги.
type styleCopier struct {
	src, dst *excelize.File
	cache    map[int]int
}

func newStyleCopier(src, dst *excelize.File) *styleCopier {
	return &styleCopier{src: src, dst: dst, cache: make(map[int]int)}
}

// styleID возвращает ID стиля в целевой книге для ячейки исходной книги; 0 если стиль по умолчанию.
func (sc *styleCopier) styleID(sheet, cell string) (int, error) {
	srcID, err := sc.src.GetCellStyle(sheet, cell)
	if err != nil || srcID == 0 {
		return 0, err
	}
	if id, ok := sc.cache[srcID]; ok {
		return id, nil
	}

	style, err := sc.src.GetStyle(srcID)
	if err != nil {
		return 0, err
	}
	// шрифт, границы, заливка, формат числа, защита и выравнивание копируются целиком
	var clone excelize.Style
	if err := deepcopy.Copy(&clone, *style); err != nil {
		return 0, fmt.Errorf("ошибка копирования стиля %d: %w", srcID, err)
	}

	id, err := sc.dst.NewStyle(&clone)
	if err != nil {
		return 0, &WriteError{Err: fmt.Errorf("ошибка создания стиля: %w", err)}
	}
	sc.cache[srcID] = id
	return id, nil
}
