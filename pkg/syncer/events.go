package syncer

import "github.com/fightinglucida/FastMP/pkg/store"

// EventType discriminates the records a sync run emits.
type EventType string

const (
	EventAccountDiscovered EventType = "account_discovered"
	EventPageIngested      EventType = "page_ingested"
	EventDone              EventType = "done"
	EventError             EventType = "error"
)

// PageStats describes one ingested listing page.
type PageStats struct {
	PageNumber  int             `json:"page_number"`
	NewlyAdded  int             `json:"newly_added"`
	TotalStored int             `json:"total_stored"`
	HasMore     bool            `json:"has_more"`
	Snapshot    []store.Article `json:"snapshot"`
}

// DoneStats closes a successful run.
type DoneStats struct {
	TotalStored int             `json:"total_stored"`
	Snapshot    []store.Article `json:"snapshot"`
}

// Event is one record in a sync run's ordered sequence. Exactly one of
// the optional sections is set, matching Type. The sequence is finite and
// ends with a Done or Error event.
type Event struct {
	Type    EventType      `json:"type"`
	Account *store.Account `json:"account,omitempty"`
	Page    *PageStats     `json:"page,omitempty"`
	Done    *DoneStats     `json:"done,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func accountEvent(acc *store.Account) Event {
	return Event{Type: EventAccountDiscovered, Account: acc}
}

func pageEvent(stats PageStats) Event {
	return Event{Type: EventPageIngested, Page: &stats}
}

func doneEvent(stats DoneStats) Event {
	return Event{Type: EventDone, Done: &stats}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Error: message}
}
