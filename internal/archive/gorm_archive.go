package archive

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shahzaib974/attendance-service/internal/domain"
)

// RoomSummaryModel is the GORM model for archived attendance rows.
type RoomSummaryModel struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Room         string `gorm:"size:255;not null;uniqueIndex:idx_room_identity"`
	Identity     string `gorm:"size:255;not null;uniqueIndex:idx_room_identity"`
	Name         string `gorm:"size:255"`
	Avatar       string `gorm:"size:512"`
	GroupID      string `gorm:"size:255;column:group_id"`
	GroupName    string `gorm:"size:255"`
	TotalSeconds int64  `gorm:"not null"`
	Rank         int    `gorm:"not null"`
	FinishedAtMs int64  `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName specifies the table name.
func (RoomSummaryModel) TableName() string {
	return "room_summaries"
}

// GormSummaryArchiver implements SummaryArchiver backed by a relational
// database through GORM.
type GormSummaryArchiver struct {
	db *gorm.DB
}

// NewGormSummaryArchiver creates a new GORM-backed summary archiver.
func NewGormSummaryArchiver(db *gorm.DB) *GormSummaryArchiver {
	return &GormSummaryArchiver{db: db}
}

func (a *GormSummaryArchiver) ArchiveRoomSummary(ctx context.Context, room string, finishedAtMs int64, rows []domain.ParticipantStat) error {
	if len(rows) == 0 {
		return nil
	}

	models := make([]RoomSummaryModel, len(rows))
	for i, row := range rows {
		models[i] = RoomSummaryModel{
			Room:         room,
			Identity:     row.Identity,
			Name:         row.Name,
			Avatar:       row.Avatar,
			GroupID:      row.GroupID,
			GroupName:    row.GroupName,
			TotalSeconds: row.TotalSeconds,
			Rank:         i + 1,
			FinishedAtMs: finishedAtMs,
		}
	}

	err := a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room"}, {Name: "identity"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "avatar", "group_id", "group_name",
			"total_seconds", "rank", "finished_at_ms", "updated_at",
		}),
	}).Create(&models).Error
	if err != nil {
		return fmt.Errorf("archive room summary: %w", err)
	}
	return nil
}

func (a *GormSummaryArchiver) RoomSummary(ctx context.Context, room string) ([]domain.ParticipantStat, int64, error) {
	var models []RoomSummaryModel
	err := a.db.WithContext(ctx).
		Where("room = ?", room).
		Order("rank ASC").
		Find(&models).Error
	if err != nil {
		return nil, 0, fmt.Errorf("read room summary: %w", err)
	}

	rows := make([]domain.ParticipantStat, len(models))
	var finishedAtMs int64
	for i, m := range models {
		rows[i] = domain.ParticipantStat{
			Identity:     m.Identity,
			Name:         m.Name,
			Avatar:       m.Avatar,
			GroupID:      m.GroupID,
			GroupName:    m.GroupName,
			TotalSeconds: m.TotalSeconds,
		}
		finishedAtMs = m.FinishedAtMs
	}
	return rows, finishedAtMs, nil
}
