package model

import (
	"time"

	"gorm.io/datatypes"
)

type AnalysisTask struct {
	SessionID  string         `gorm:"type:text;primaryKey"`
	RepoURL    string         `gorm:"type:text;not null"`
	UserOrigin string         `gorm:"type:text;not null;index"`
	Status     string         `gorm:"type:varchar(16);not null;index"`
	Embedding  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

func (AnalysisTask) TableName() string {
	return "analysis_tasks"
}
