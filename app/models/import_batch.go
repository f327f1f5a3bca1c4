package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	IMPORT_KIND_LEADS = "leads"
	IMPORT_KIND_SALES = "sales"
)

// ImportBatch records one executed spreadsheet import.
type ImportBatch struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Kind         string         `gorm:"type:varchar(20);index" json:"kind"`
	Filename     string         `gorm:"type:varchar(255)" json:"filename"`
	ArchivedKey  string         `gorm:"type:varchar(500);default:null" json:"archived_key"`
	TotalRows    int            `json:"total_rows"`
	ImportedRows int            `json:"imported_rows"`
	FailedRows   int            `json:"failed_rows"`
	Errors       datatypes.JSON `json:"errors"`
	CreatedBy    uint           `gorm:"index" json:"created_by"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
