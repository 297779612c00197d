package domain

// EventKind names the audit tables.
type EventKind string

const (
	EventSession   EventKind = "session"
	EventRequest   EventKind = "request"
	EventTampering EventKind = "tampering"
	EventDownload  EventKind = "download"
	EventError     EventKind = "error"
)

// UTMKeys lists the campaign parameters captured on a new session.
var UTMKeys = []string{
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_term",
	"utm_content",
}

// SessionVisit is the context recorded when a visitor lands on the index page.
type SessionVisit struct {
	SessionID string
	Referrer  string
	UTM       map[string]string
}
