package usecase

const (
	defaultPayloadCapacity = 4 * 1024
	// буфер, разросшийся больше этого размера, не удерживается после записи
	maxRetainedPayloadCapacity = 512 * 1024
)

// payloadBuffer - переиспользуемый буфер для склейки сообщений группы
type payloadBuffer struct {
	data []byte
}

func (b *payloadBuffer) appendLine(message string) {
	if b.data == nil {
		b.data = make([]byte, 0, defaultPayloadCapacity)
	}
	b.data = append(b.data, message...)
	b.data = append(b.data, '\n')
}

func (b *payloadBuffer) len() int {
	return len(b.data)
}

// lines возвращает содержимое с завершающим переводом строки
func (b *payloadBuffer) lines() []byte {
	return b.data
}

// joined возвращает содержимое без завершающего перевода строки
func (b *payloadBuffer) joined() []byte {
	if n := len(b.data); n > 0 && b.data[n-1] == '\n' {
		return b.data[:n-1]
	}
	return b.data
}

// release очищает буфер и отдает лишнюю емкость
func (b *payloadBuffer) release() {
	if cap(b.data) > maxRetainedPayloadCapacity {
		b.data = make([]byte, 0, defaultPayloadCapacity)
		return
	}
	b.data = b.data[:0]
}
