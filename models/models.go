package models

import (
	"time"
)

// TxtJob is the persisted record of one accepted conversion job.
type TxtJob struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	EventType   string `gorm:"type:text"`
	PDFPath     string `gorm:"column:pdf_path;type:text;not null"`
	TXTPath     string `gorm:"column:txt_path;type:text;not null;index:idx_txt_jobs_txt_path"`
	Status      string `gorm:"type:text;not null"`
	Pages       int
	PageErrors  int
	Error       string     `gorm:"type:text"`
	ReceivedAt  time.Time  `gorm:"type:timestamp with time zone"`
	CompletedAt *time.Time `gorm:"type:timestamp with time zone"`
}

// TableName overrides the table name
func (TxtJob) TableName() string {
	return "txt_jobs"
}
