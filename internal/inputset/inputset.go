// Package inputset хранит упорядоченный список загруженных книг перед объединением.
package inputset

// SourceFile одна загруженная книга. Name используется как ключ уникальности.
type SourceFile struct {
	Name    string
	Content []byte
}

// Set упорядоченный набор входных файлов без повторов по имени.
// Порядок определяет, чья шапка попадёт в результат, и порядок добавления строк.
// Не потокобезопасен: у каждого владельца (запуск CLI, сессия) свой экземпляр.
type Set struct {
	files []SourceFile
}

func New() *Set {
	return &Set{}
}

// Add добавляет файл в конец, если файла с таким именем ещё нет.
// Содержимое копируется, дальше набор его не изменяет.
func (s *Set) Add(name string, content []byte) bool {
	if s.index(name) >= 0 {
		return false
	}
	data := make([]byte, len(content))
	copy(data, content)
	s.files = append(s.files, SourceFile{Name: name, Content: data})
	return true
}

// RotateForward переносит последний файл в начало.
func (s *Set) RotateForward() {
	n := len(s.files)
	if n < 2 {
		return
	}
	last := s.files[n-1]
	copy(s.files[1:], s.files[:n-1])
	s.files[0] = last
}

// RotateBackward переносит первый файл в конец.
func (s *Set) RotateBackward() {
	n := len(s.files)
	if n < 2 {
		return
	}
	first := s.files[0]
	copy(s.files, s.files[1:])
	s.files[n-1] = first
}

// RemoveLast удаляет последний файл.
func (s *Set) RemoveLast() {
	if len(s.files) == 0 {
		return
	}
	s.files[len(s.files)-1] = SourceFile{}
	s.files = s.files[:len(s.files)-1]
}

func (s *Set) Clear() {
	s.files = nil
}

// Snapshot возвращает текущий порядок файлов. Каждый вызов отдаёт новый срез.
func (s *Set) Snapshot() []SourceFile {
	out := make([]SourceFile, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Set) Len() int {
	return len(s.files)
}

// Names возвращает имена файлов в текущем порядке.
func (s *Set) Names() []string {
	names := make([]string, len(s.files))
	for i, f := range s.files {
		names[i] = f.Name
	}
	return names
}

func (s *Set) index(name string) int {
	for i, f := range s.files {
		if f.Name == name {
			return i
		}
	}
	return -1
}
