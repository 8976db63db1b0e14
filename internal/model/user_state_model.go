package model

import "time"

type UserState struct {
	UserID            string    `gorm:"type:text;primaryKey"`
	CurrentRepoURL    string    `gorm:"type:text"`
	AnalysisSessionID string    `gorm:"type:text"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (UserState) TableName() string {
	return "user_states"
}
