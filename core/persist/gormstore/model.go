package gormstore

import (
	"time"

	"portfolio-persist/core/persist"

	"github.com/google/uuid"
)

// TableName is the table holding persisted records.
const TableName = "persisted_records"

// Columns lists the columns Verify expects to find.
var Columns = []string{"id", "kind", "parent_id", "version", "revision", "payload", "created_at", "updated_at"}

// recordRow is the stored form of a persist.Record.
type recordRow struct {
	ID       string     `gorm:"primaryKey;type:char(36)"`
	Kind     string     `gorm:"type:varchar(64);not null;index"`
	ParentID *string    `gorm:"type:char(36);index"`
	Parent   *recordRow `gorm:"foreignKey:ParentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Version  int64      `gorm:"not null"`
	Revision int64      `gorm:"not null"`
	Payload  []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (recordRow) TableName() string {
	return TableName
}

func toRow(rec *persist.Record) recordRow {
	row := recordRow{
		ID:       rec.ID.String(),
		Kind:     rec.Kind,
		Version:  rec.Version,
		Revision: rec.Revision,
		Payload:  rec.Payload,
	}
	if rec.ParentID != nil {
		parent := rec.ParentID.String()
		row.ParentID = &parent
	}
	return row
}

func (row recordRow) toRecord() (*persist.Record, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, persist.NewFault(persist.FaultPropertyAccess, err)
	}
	rec := &persist.Record{
		Kind:     row.Kind,
		ID:       id,
		Version:  row.Version,
		Revision: row.Revision,
		Payload:  row.Payload,
	}
	if row.ParentID != nil {
		parent, err := uuid.Parse(*row.ParentID)
		if err != nil {
			return nil, persist.NewFault(persist.FaultPropertyAccess, err)
		}
		rec.ParentID = &parent
	}
	return rec, nil
}
