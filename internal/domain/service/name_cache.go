package service

// DefaultNameCacheLimit - порог, после которого кэш очищается целиком
const DefaultNameCacheLimit = 1000

// NameCache запоминает исправленные имена по сырому входу, чтобы не гонять
// regexp на каждое событие. Вытеснение - полная очистка при достижении
// лимита, без LRU.
//
// NameCache не потокобезопасен: один экземпляр на один поток записи.
type NameCache struct {
	entries map[string]string
	limit   int
	clears  int
}

// NewNameCache создает кэш с лимитом по умолчанию
func NewNameCache() *NameCache {
	return NewNameCacheWithLimit(DefaultNameCacheLimit)
}

// NewNameCacheWithLimit создает кэш с заданным лимитом
func NewNameCacheWithLimit(limit int) *NameCache {
	if limit <= 0 {
		limit = DefaultNameCacheLimit
	}
	return &NameCache{
		entries: make(map[string]string),
		limit:   limit,
	}
}

// Lookup возвращает закэшированное имя или вычисляет его через repair.
// При попадании repair не вызывается.
func (c *NameCache) Lookup(raw string, repair func(string) string) string {
	if name, ok := c.entries[raw]; ok {
		return name
	}

	name := repair(raw)
	if len(c.entries) >= c.limit {
		c.Clear()
	}
	c.entries[raw] = name
	return name
}

// Len возвращает количество записей
func (c *NameCache) Len() int {
	return len(c.entries)
}

// Clears возвращает, сколько раз кэш очищался
func (c *NameCache) Clears() int {
	return c.clears
}

// Clear очищает кэш на месте
func (c *NameCache) Clear() {
	clear(c.entries)
	c.clears++
}
