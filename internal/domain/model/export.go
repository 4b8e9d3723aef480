// export.go — запись журнала экспорта.
package model

import "time"

// ExportStatus — состояние экспорта.
type ExportStatus string

const (
	ExportRunning   ExportStatus = "running"
	ExportCompleted ExportStatus = "completed"
	ExportFailed    ExportStatus = "failed"
)

// ExportRecord — одна операция экспорта отчёта.
type ExportRecord struct {
	ID         string            `json:"id"`
	Resource   string            `json:"resource"`
	Format     string            `json:"format"`
	Actor      string            `json:"actor"`
	Chapter    string            `json:"chapter,omitempty"`
	Filters    map[string]string `json:"filters"`
	Status     ExportStatus      `json:"status"`
	RowCount   int               `json:"rowCount"`
	FileName   string            `json:"fileName,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}
