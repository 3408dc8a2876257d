package usecase

import "context"

// ResourceHandle хранит последний открытый удаленный ресурс и его ключ.
// Пока ключ не меняется, ресурс переиспользуется; смена ключа отбрасывает
// старый ресурс без закрытия и открывает новый.
// Не потокобезопасен: принадлежит одному Writer.
type ResourceHandle[K comparable, R any] struct {
	key      K
	resource R
	valid    bool
	opens    int
}

// Ensure возвращает ресурс для key, вызывая open только при смене ключа.
// open должен выполнить "проверить существование -> создать при отсутствии".
// После ошибки open ячейка остается пустой.
func (h *ResourceHandle[K, R]) Ensure(ctx context.Context, key K, open func(context.Context, K) (R, error)) (R, error) {
	if h.valid && h.key == key {
		return h.resource, nil
	}

	h.Reset()
	h.opens++

	resource, err := open(ctx, key)
	if err != nil {
		var zero R
		return zero, err
	}

	h.key = key
	h.resource = resource
	h.valid = true
	return resource, nil
}

// Key возвращает ключ текущего ресурса
func (h *ResourceHandle[K, R]) Key() (K, bool) {
	return h.key, h.valid
}

// Opens возвращает количество попыток открытия ресурса
func (h *ResourceHandle[K, R]) Opens() int {
	return h.opens
}

// Reset отбрасывает текущий ресурс
func (h *ResourceHandle[K, R]) Reset() {
	var zeroKey K
	var zeroResource R
	h.key = zeroKey
	h.resource = zeroResource
	h.valid = false
}
