package engine

import "time"

type EventType int

const (
	EventOrderFilled EventType = iota
	EventInsufficientCash
	EventInvalidPrice
	EventInsufficientHistory
	EventUnknownPattern
	EventUnknownIndicator
	EventDayTradeExit
	EventDriftCorrected
	EventValueMismatch
	EventUnknownAction
)

var eventNames = [...]string{
	EventOrderFilled:         "order_filled",
	EventInsufficientCash:    "insufficient_cash",
	EventInvalidPrice:        "invalid_price",
	EventInsufficientHistory: "insufficient_history",
	EventUnknownPattern:      "unknown_pattern",
	EventUnknownIndicator:    "unknown_indicator",
	EventDayTradeExit:        "day_trade_exit",
	EventDriftCorrected:      "drift_corrected",
	EventValueMismatch:       "value_mismatch",
	EventUnknownAction:       "unknown_action",
}

func (t EventType) String() string {
	if int(t) < 0 || int(t) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[t]
}

// Event is a decision the engine made that did not change the ledger's
// shape on its own, such as a skipped order or a corrected value.
type Event struct {
	Date    time.Time
	Type    EventType
	Symbol  string
	Details map[string]string
}

// EventSink receives events as they happen. Implementations must be safe
// for concurrent use when one sink is shared across engines.
type EventSink interface {
	Append(e Event)
}

type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }

// Count returns how many events of type t were logged.
func (l *EventLog) Count(t EventType) int {
	n := 0
	for _, e := range l.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}
