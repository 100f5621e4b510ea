package amqp

import (
	"encoding/json"
	"time"

	"finbot/internal/report"
)

// PeriodReportMessage is the wire form of a period report. Amounts travel
// as fixed-point strings so consumers never touch floats.
type PeriodReportMessage struct {
	UserID      int64  `json:"user_id"`
	PeriodType  string `json:"period_type"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`

	TotalIncome  string `json:"total_income"`
	TotalExpense string `json:"total_expense"`
	Balance      string `json:"balance"`
	BalanceDelta string `json:"balance_delta"`

	Categories []CategoryTotal `json:"categories"`

	GeneratedAt time.Time `json:"generated_at"`
}

// CategoryTotal is one category line of a report message.
type CategoryTotal struct {
	Category string `json:"category"`
	Kind     string `json:"kind"`
	Total    string `json:"total"`
}

const dateLayout = "2006-01-02"

func NewPeriodReportMessage(r report.PeriodReport) *PeriodReportMessage {
	msg := &PeriodReportMessage{
		UserID:       r.UserID,
		PeriodType:   string(r.PeriodType),
		PeriodStart:  r.Period.Start.Format(dateLayout),
		PeriodEnd:    r.Period.End.Format(dateLayout),
		TotalIncome:  r.Statistics.TotalIncome.StringFixed(2),
		TotalExpense: r.Statistics.TotalExpense.StringFixed(2),
		Balance:      r.Statistics.Balance.StringFixed(2),
		BalanceDelta: r.BalanceDelta.StringFixed(2),
		GeneratedAt:  r.GeneratedAt,
	}
	for _, c := range r.Categories {
		msg.Categories = append(msg.Categories, CategoryTotal{
			Category: c.Category,
			Kind:     c.Kind.String(),
			Total:    c.Total.StringFixed(2),
		})
	}
	return msg
}

func (m *PeriodReportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PeriodReportMessageFromJSON(data []byte) (*PeriodReportMessage, error) {
	var msg PeriodReportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
