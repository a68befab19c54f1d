package model

// RowStatus — исход обработки одной строки пакета.
type RowStatus string

const (
	RowProcessed RowStatus = "processed"
	RowSkipped   RowStatus = "skipped"
	RowError     RowStatus = "error"
)

// BatchRow — строка пакета, уже разобранная на стороне клиента.
type BatchRow struct {
	// Email — естественный ключ строки (нормализуется движком)
	Email string
}

// BatchRowResult — результат обработки строки пакета.
type BatchRowResult struct {
	// Email — нормализованный ключ, как его увидел движок
	Email    string
	Status   RowStatus
	AnchorID *string
	Error    string
}

// BatchResult — итог выполнения пакета.
type BatchResult struct {
	BatchID   string
	Success   bool
	Processed int
	Skipped   int
	Errors    int
	// Truncated — дедлайн истёк до обработки всех строк
	Truncated bool
	// AuditError — ошибка записи аудита (якоря при этом сохранены)
	AuditError string
	Rows       []BatchRowResult
}
