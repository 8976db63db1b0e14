package entity

import "time"

// UserState is the durable part of a session: the repository it is ready on.
type UserState struct {
	UserID            string
	CurrentRepoURL    string
	AnalysisSessionID string
	UpdatedAt         time.Time
}
