package domain

import "time"

// RiskLevel is the coarse classification of a risk score.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "SAFE"
	RiskCaution  RiskLevel = "CAUTION"
	RiskCritical RiskLevel = "CRITICAL"
)

// ClassifyRisk maps a 0..100 score to SAFE (<=50), CAUTION (<=75) or
// CRITICAL.
func ClassifyRisk(score int) RiskLevel {
	switch {
	case score <= 50:
		return RiskSafe
	case score <= 75:
		return RiskCaution
	default:
		return RiskCritical
	}
}

// RiskReading is one market-sentiment row.
type RiskReading struct {
	ID        int64
	Score     int
	Sentiment RiskLevel
	Summary   string
	Timestamp time.Time
}
