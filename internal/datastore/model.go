package datastore

import "time"

// Session is one night of capture. At most one session has a nil EndTime.
type Session struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	StartTime      time.Time  `gorm:"index;not null" json:"startTime"`
	EndTime        *time.Time `gorm:"index" json:"endTime,omitempty"`
	LastCheckpoint *time.Time `json:"lastCheckpoint,omitempty"`
	SnippetCount   int        `gorm:"not null;default:0" json:"snippetCount"`
	Recovered      bool       `gorm:"not null;default:false" json:"recovered"`
	CreatedAt      time.Time  `json:"-"`
	UpdatedAt      time.Time  `json:"-"`
}

// Active reports whether the session is still open.
func (s *Session) Active() bool {
	return s.EndTime == nil
}

// Duration returns the session length, measured up to now for an active
// session.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// Snippet is one saved loud event.
type Snippet struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  uint      `gorm:"index;not null" json:"sessionId"`
	FileName   string    `gorm:"uniqueIndex;size:255;not null" json:"fileName"`
	Timestamp  time.Time `gorm:"index;not null" json:"timestamp"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`
	RMSValue   float64   `gorm:"index" json:"rmsValue"`
	PeakRMS    float64   `json:"peakRms"`
	AvgRMS     float64   `json:"avgRms"`
	CreatedAt  time.Time `json:"-"`
}
