package service

// Group - события одного назначения в исходном порядке
type Group[K comparable, E any] struct {
	Key     K
	Items   []E
	Indexes []int // позиции элементов в исходном батче
}

// GroupBy разбивает батч на группы по ключу.
// Группы идут в порядке первого появления ключа, внутри группы сохраняется
// исходный порядок. Результат детерминирован.
func GroupBy[K comparable, E any](items []E, key func(E) K) []Group[K, E] {
	switch len(items) {
	case 0:
		return nil
	case 1:
		return []Group[K, E]{{Key: key(items[0]), Items: items[:1:1], Indexes: []int{0}}}
	}

	positions := make(map[K]int)
	groups := make([]Group[K, E], 0, 4)

	for i, item := range items {
		k := key(item)
		pos, ok := positions[k]
		if !ok {
			pos = len(groups)
			positions[k] = pos
			groups = append(groups, Group[K, E]{Key: k})
		}
		groups[pos].Items = append(groups[pos].Items, item)
		groups[pos].Indexes = append(groups[pos].Indexes, i)
	}

	return groups
}
