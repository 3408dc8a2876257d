package valueobject

// DestinationKey идентифицирует удаленный ресурс, в который пишутся события.
// Resource - контейнер, очередь или таблица; Object - имя blob
// (или partition key для таблиц), для очередей пустой.
// Сравнение идет по точному совпадению всех компонентов, поэтому ключ
// можно использовать в map.
type DestinationKey struct {
	Resource string
	Object   string
}

// NewDestinationKey создает ключ назначения
func NewDestinationKey(resource, object string) DestinationKey {
	return DestinationKey{Resource: resource, Object: object}
}

// IsZero возвращает true для пустого ключа
func (k DestinationKey) IsZero() bool {
	return k.Resource == "" && k.Object == ""
}

// String возвращает строковое представление ключа
func (k DestinationKey) String() string {
	if k.Object == "" {
		return k.Resource
	}
	return k.Resource + "/" + k.Object
}
