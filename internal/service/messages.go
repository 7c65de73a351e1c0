package service

import (
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// CycleResultMessage is the JSON shape of one pair's cycle result.
type CycleResultMessage struct {
	Pair     string             `json:"pair"`
	Outcome  string             `json:"outcome"`
	Reason   string             `json:"reason,omitempty"`
	Detail   string             `json:"detail,omitempty"`
	From     string             `json:"from,omitempty"`
	To       string             `json:"to,omitempty"`
	Event    *TradeEventMessage `json:"event,omitempty"`
	ZScore   float64            `json:"z_score"`
	Lambda   float64            `json:"lambda"`
	HalfLife float64            `json:"half_life"`
}

// CycleReportMessage is the JSON shape of a cycle report on the signal bus
// and the HTTP API.
type CycleReportMessage struct {
	ID         string               `json:"id"`
	StartedAt  string               `json:"started_at"`
	FinishedAt string               `json:"finished_at,omitempty"`
	RiskScore  int                  `json:"risk_score"`
	RiskLevel  string               `json:"risk_level"`
	Halted     bool                 `json:"halted"`
	Results    []CycleResultMessage `json:"results"`
}

// NewCycleReportMessage converts a report to its wire form.
func NewCycleReportMessage(r domain.CycleReport) CycleReportMessage {
	msg := CycleReportMessage{
		ID:        r.ID,
		StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
		RiskScore: r.RiskScore,
		RiskLevel: string(r.RiskLevel),
		Halted:    r.Halted,
		Results:   make([]CycleResultMessage, 0, len(r.Results)),
	}
	if !r.FinishedAt.IsZero() {
		msg.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	for _, res := range r.Results {
		m := CycleResultMessage{
			Pair:     res.PairID,
			Outcome:  string(res.Outcome),
			Reason:   string(res.Reason),
			Detail:   res.Detail,
			From:     string(res.From),
			To:       string(res.To),
			ZScore:   finite(res.ZScore),
			Lambda:   finite(res.Lambda),
			HalfLife: finite(res.HalfLife),
		}
		if res.Event != nil {
			ev := NewTradeEventMessage(*res.Event)
			m.Event = &ev
		}
		msg.Results = append(msg.Results, m)
	}
	return msg
}
