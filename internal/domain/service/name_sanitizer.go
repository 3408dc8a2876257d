package service

import (
	"regexp"
	"strings"
	"time"

	"github.com/dreschagin/cloudsink/internal/domain/valueobject"
)

const (
	minResourceNameLength = 3
	maxResourceNameLength = 63
	maxBlobNameLength     = 1024

	// DefaultContainerName используется, когда имя контейнера не удалось исправить
	DefaultContainerName = "defaultlog"
	// DefaultQueueName используется, когда имя очереди не удалось исправить
	DefaultQueueName = "defaultqueue"
	// DefaultTableName используется, когда имя таблицы не удалось исправить
	DefaultTableName = "Logs"

	blobFallbackLayout = "06-01-02"
)

var (
	// Go regexp не поддерживает lookahead, поэтому запрет "--" проверяется отдельно
	containerNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)
	tableNamePattern     = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{2,62}$`)

	containerSeparators = strings.NewReplacer(".", "-", "_", "-", `\`, "-", "/", "-", " ", "-")
	forbiddenLabelChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)
	trailingNonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9]+$`)
	leadingNonAlnum     = regexp.MustCompile(`^[^a-zA-Z0-9]+`)
	repeatedHyphens     = regexp.MustCompile(`-{2,}`)
	forbiddenTableChars = regexp.MustCompile(`[^a-zA-Z0-9]`)
	leadingNonLetters   = regexp.MustCompile(`^[^a-zA-Z]+`)
)

// NameSanitizer исправляет имена ресурсов под правила именования хранилища (Domain Service).
// Методы никогда не возвращают ошибку: в худшем случае возвращается имя по умолчанию.
type NameSanitizer struct {
	now func() time.Time
}

// NewNameSanitizer создает новый NameSanitizer
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{now: time.Now}
}

// NewNameSanitizerWithClock создает NameSanitizer с заданными часами (для имен blob)
func NewNameSanitizerWithClock(now func() time.Time) *NameSanitizer {
	if now == nil {
		now = time.Now
	}
	return &NameSanitizer{now: now}
}

// Repair возвращает имя, удовлетворяющее грамматике kind.
// Неизвестный kind обрабатывается как контейнер.
func (s *NameSanitizer) Repair(kind valueobject.NameKind, raw string) string {
	switch kind {
	case valueobject.Table:
		return s.RepairTable(raw)
	case valueobject.Queue:
		return s.RepairQueue(raw)
	case valueobject.Blob:
		return s.RepairBlob(raw)
	default:
		return s.RepairContainer(raw)
	}
}

// RepairContainer исправляет имя контейнера (DNS label: 3-63 символа, [a-z0-9-])
func (s *NameSanitizer) RepairContainer(raw string) string {
	return repairLabel(raw, DefaultContainerName)
}

// RepairQueue исправляет имя очереди. Грамматика та же, что у контейнера.
func (s *NameSanitizer) RepairQueue(raw string) string {
	return repairLabel(raw, DefaultQueueName)
}

// RepairTable исправляет имя таблицы (3-63 буквенно-цифровых символа, первая - буква).
// Регистр сохраняется.
func (s *NameSanitizer) RepairTable(raw string) string {
	if name, ok := fastTableName(raw); ok {
		return name
	}

	trimmed := strings.TrimSpace(raw)
	if tableNamePattern.MatchString(trimmed) {
		return trimmed
	}

	cleaned := forbiddenTableChars.ReplaceAllString(trimmed, "")
	cleaned = leadingNonLetters.ReplaceAllString(cleaned, "")
	if len(cleaned) > maxResourceNameLength {
		cleaned = cleaned[:maxResourceNameLength]
	}

	if tableNamePattern.MatchString(cleaned) {
		return cleaned
	}
	return DefaultTableName
}

// RepairBlob проверяет имя blob: непустое и не длиннее 1024 символов.
// Иначе возвращается имя вида Log-yy-MM-dd.log от текущей даты (UTC),
// поэтому результат нельзя кэшировать.
func (s *NameSanitizer) RepairBlob(raw string) string {
	if raw != "" && len(raw) <= maxBlobNameLength {
		return raw
	}
	return "Log-" + s.now().UTC().Format(blobFallbackLayout) + ".log"
}

// IsValidContainerName проверяет имя по грамматике контейнера
func IsValidContainerName(name string) bool {
	return containerNamePattern.MatchString(name) && !strings.Contains(name, "--")
}

// IsValidTableName проверяет имя по грамматике таблицы
func IsValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

func repairLabel(raw, fallback string) string {
	if name, ok := fastLabelName(raw); ok {
		return name
	}

	lowered := strings.ToLower(strings.TrimSpace(raw))
	if IsValidContainerName(lowered) {
		return lowered
	}

	cleaned := containerSeparators.Replace(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, "-")
	cleaned = forbiddenLabelChars.ReplaceAllString(cleaned, "")
	cleaned = trailingNonAlnum.ReplaceAllString(cleaned, "")
	cleaned = leadingNonAlnum.ReplaceAllString(cleaned, "")
	cleaned = repeatedHyphens.ReplaceAllString(cleaned, "-")
	cleaned = strings.ToLower(cleaned)

	if len(cleaned) > maxResourceNameLength {
		cleaned = trailingNonAlnum.ReplaceAllString(cleaned[:maxResourceNameLength], "")
	}

	if IsValidContainerName(cleaned) {
		return cleaned
	}
	return fallback
}

// fastLabelName пропускает regexp для уже корректных имен из букв и цифр.
// Цифра на первой позиции отправляет имя на медленный путь.
func fastLabelName(raw string) (string, bool) {
	if len(raw) < minResourceNameLength || len(raw) > maxResourceNameLength {
		return "", false
	}

	hasUpper := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= '0' && c <= '9' && i > 0:
		default:
			return "", false
		}
	}

	if hasUpper {
		return strings.ToLower(raw), true
	}
	return raw, true
}

func fastTableName(raw string) (string, bool) {
	if len(raw) < minResourceNameLength || len(raw) > maxResourceNameLength {
		return "", false
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return "", false
		}
	}
	return raw, true
}
