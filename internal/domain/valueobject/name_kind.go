package valueobject

import "errors"

// NameKind определяет грамматику имени удаленного ресурса (Value Object)
type NameKind string

const (
	Container NameKind = "container"
	Queue     NameKind = "queue"
	Table     NameKind = "table"
	Blob      NameKind = "blob"
)

// Validate проверяет валидность типа имени
func (k NameKind) Validate() error {
	switch k {
	case Container, Queue, Table, Blob:
		return nil
	default:
		return errors.New("invalid name kind")
	}
}

// String возвращает строковое представление типа имени
func (k NameKind) String() string {
	return string(k)
}

// Cacheable сообщает, можно ли кэшировать результат исправления имени.
// Имена blob зависят от текущей даты и в кэш не попадают.
func (k NameKind) Cacheable() bool {
	return k != Blob
}

// AllNameKinds возвращает список всех допустимых типов имен
func AllNameKinds() []NameKind {
	return []NameKind{Container, Queue, Table, Blob}
}
