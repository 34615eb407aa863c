package streaming

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"chainreport/internal/domain"
)

type MessageType string

const (
	MessageTypeRow  MessageType = "report_row"
	MessageTypeDone MessageType = "report_done"
)

// Message is one record of a published report. A run is a sequence of
// report_row messages in rank order followed by a single report_done.
type Message struct {
	Type             MessageType `json:"type"`
	RunID            string      `json:"run_id"`
	TraceID          string      `json:"trace_id,omitempty"`
	Position         int         `json:"position,omitempty"`
	Rank             int         `json:"rank,omitempty"`
	Address          string      `json:"address,omitempty"`
	Balance          string      `json:"balance,omitempty"`
	BalanceState     string      `json:"balance_state,omitempty"`
	DisplayName      string      `json:"display_name,omitempty"`
	DisplayNameState string      `json:"display_name_state,omitempty"`
	Reason           string      `json:"reason,omitempty"`
	Rows             int         `json:"rows,omitempty"`
	Unresolved       int         `json:"unresolved,omitempty"`
	GeneratedAt      time.Time   `json:"generated_at"`
}

// RowMessage maps a report row. Balance is a decimal string and is only set
// when resolved.
func RowMessage(report domain.Report, position int, row domain.ReportRow) Message {
	msg := Message{
		Type:             MessageTypeRow,
		RunID:            report.RunID,
		Position:         position,
		Rank:             row.Rank,
		Address:          row.Address,
		BalanceState:     row.Balance.State.String(),
		DisplayNameState: row.DisplayName.State.String(),
		GeneratedAt:      report.GeneratedAt,
	}
	if row.Balance.State == domain.FieldResolved && row.Balance.Total != nil {
		msg.Balance = row.Balance.Total.String()
	}
	if row.DisplayName.State == domain.FieldResolved {
		msg.DisplayName = row.DisplayName.Value
	}
	var reasons []string
	if row.Balance.Reason != "" {
		reasons = append(reasons, "balance: "+row.Balance.Reason)
	}
	if row.DisplayName.Reason != "" {
		reasons = append(reasons, "display_name: "+row.DisplayName.Reason)
	}
	if len(reasons) > 0 {
		msg.Reason = strings.Join(reasons, "; ")
	}
	return msg
}

func DoneMessage(report domain.Report) Message {
	return Message{
		Type:        MessageTypeDone,
		RunID:       report.RunID,
		Rows:        len(report.Rows),
		Unresolved:  report.UnresolvedCount(),
		GeneratedAt: report.GeneratedAt,
	}
}

func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("message type is required")
	}
	if msg.RunID == "" {
		return nil, errors.New("run_id is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message type is missing")
	}
	if msg.RunID == "" {
		return Message{}, errors.New("run_id is missing")
	}
	return msg, nil
}
