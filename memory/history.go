package memory

import (
	"fmt"
	"strings"
)

// Message roles accepted in client-supplied history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RawHistoryItem is one message of a client-supplied transcript.
type RawHistoryItem struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// AnomalyKind classifies a history item that could not be paired.
type AnomalyKind string

const (
	// AnomalyOrphanAnswer is an assistant item with no pending user item.
	AnomalyOrphanAnswer AnomalyKind = "orphan_answer"
	// AnomalyUnansweredQuestion is a user item followed by another user item.
	AnomalyUnansweredQuestion AnomalyKind = "unanswered_question"
	// AnomalyEmptyContent is an item whose content is empty or blank.
	AnomalyEmptyContent AnomalyKind = "empty_content"
	// AnomalyUnknownType is an item with a type other than user or assistant.
	AnomalyUnknownType AnomalyKind = "unknown_type"
)

// Anomaly records one skipped history item.
type Anomaly struct {
	Index int         `json:"index"`
	Kind  AnomalyKind `json:"kind"`
	Type  string      `json:"type,omitempty"`
}

func (a Anomaly) String() string {
	return fmt.Sprintf("item %d (%s): %s", a.Index, a.Type, a.Kind)
}

// LoadReport describes the outcome of a history reconstruction.
type LoadReport struct {
	Items     int       // items received
	Pairs     int       // exchanges reconstructed
	Pending   bool      // last user item had no answer and was dropped
	Anomalies []Anomaly // skipped items, in input order
}

// Clean reports whether every item was consumed without anomalies.
// A pending trailing question is not an anomaly.
func (r LoadReport) Clean() bool {
	return len(r.Anomalies) == 0
}

// normalizeType maps a raw item type to a role, or "" if unknown.
func normalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case RoleUser:
		return RoleUser
	case RoleAssistant:
		return RoleAssistant
	default:
		return ""
	}
}

// pairHistory scans items forward, pairing each user item with the
// assistant item that immediately follows it. Every item is consumed
// at most once. The emit callback receives complete pairs in order.
func pairHistory(items []RawHistoryItem, emit func(question, answer string)) LoadReport {
	report := LoadReport{Items: len(items)}

	var (
		pending    string
		pendingIdx = -1
	)

	for i, item := range items {
		if strings.TrimSpace(item.Content) == "" {
			report.Anomalies = append(report.Anomalies, Anomaly{Index: i, Kind: AnomalyEmptyContent, Type: item.Type})
			continue
		}

		switch normalizeType(item.Type) {
		case RoleUser:
			if pendingIdx >= 0 {
				report.Anomalies = append(report.Anomalies, Anomaly{Index: pendingIdx, Kind: AnomalyUnansweredQuestion, Type: RoleUser})
			}
			pending, pendingIdx = item.Content, i
		case RoleAssistant:
			if pendingIdx < 0 {
				report.Anomalies = append(report.Anomalies, Anomaly{Index: i, Kind: AnomalyOrphanAnswer, Type: RoleAssistant})
				continue
			}
			emit(pending, item.Content)
			report.Pairs++
			pending, pendingIdx = "", -1
		default:
			report.Anomalies = append(report.Anomalies, Anomaly{Index: i, Kind: AnomalyUnknownType, Type: item.Type})
		}
	}

	report.Pending = pendingIdx >= 0
	return report
}
