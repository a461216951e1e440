package merger

import (
	"fmt"
	"maps"
	"slices"
	"unicode/utf8"

	"github.com/ryabkov82/gstr2b-merger/internal/config"
	"github.com/ryabkov82/gstr2b-merger/internal/inputset"
	"github.com/xuri/excelize/v2"
)

const (
	// widthPadding добавляется к длине самого длинного значения колонки
	widthPadding = 5
	maxColWidth  = 255
)

type FileMerger interface {
	Merge(sheets []config.SheetConfig, inputs []inputset.SourceFile) (*Result, error)
}

// Result объединённая книга и сводка по листам.
type Result struct {
	Data   []byte
	Sheets []SheetSummary
}

type SheetSummary struct {
	Name         string
	HeaderSource string   // файл, из которого взята шапка; пусто, если листа не было ни в одном файле
	Sources      []string // файлы, содержавшие лист, в порядке обхода
	Rows         int      // строк данных добавлено после шапки
}

// RowCount общее число строк данных во всех листах.
func (r *Result) RowCount() int64 {
	var n int64
	for _, s := range r.Sheets {
		n += int64(s.Rows)
	}
	return n
}

type BaseMerger struct {
	MaxColWidths map[int]int
}

// Init сбрасывает накопленные ширины перед обработкой очередного листа
func (bm *BaseMerger) Init() {
	bm.MaxColWidths = make(map[int]int)
}

// trackWidth запоминает длину значения в символах для колонки col (с 1)
func (bm *BaseMerger) trackWidth(col int, text string) {
	if text == "" {
		return
	}
	if n := utf8.RuneCountInString(text); n > bm.MaxColWidths[col] {
		bm.MaxColWidths[col] = n
	}
}

// applyColWidths выставляет ширину только тем колонкам, где встретилось непустое значение.
func (bm *BaseMerger) applyColWidths(f *excelize.File, sheet string) error {
	for _, col := range slices.Sorted(maps.Keys(bm.MaxColWidths)) {
		colName, err := excelize.ColumnNumberToName(col)
		if err != nil {
			return err
		}
		width := min(bm.MaxColWidths[col]+widthPadding, maxColWidth)
		if err := f.SetColWidth(sheet, colName, colName, float64(width)); err != nil {
			return fmt.Errorf("ошибка установки ширины колонки %s: %w", colName, err)
		}
	}
	return nil
}

// Merge объединяет книги с настройками по умолчанию и возвращает только байты результата.
func Merge(sheets []config.SheetConfig, inputs []inputset.SourceFile) ([]byte, error) {
	res, err := NewWorkbookMerger(nil).Merge(sheets, inputs)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}
