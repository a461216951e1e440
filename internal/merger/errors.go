package merger

import (
	"errors"
	"fmt"
)

// ErrNoInputFiles список входных файлов пуст.
var ErrNoInputFiles = errors.New("не выбрано ни одного файла")

// ErrNoSheetConfigs не задан ни один лист для объединения.
var ErrNoSheetConfigs = errors.New("не задан ни один лист")

// ReadError входной файл не удалось разобрать как книгу xlsx.
type ReadError struct {
	Name string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("ошибка чтения файла %s: %v", e.Name, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// WriteError не удалось сформировать или сохранить результирующую книгу.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ошибка сохранения результата: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
