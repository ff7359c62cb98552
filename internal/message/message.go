package message

import (
	"errors"
	"fmt"
)

// ErrMalformed marks a wire record that carries neither or both of
// report_id and text.
var ErrMalformed = errors.New("malformed message")

// Record is the raw shape returned by the message source for one billing
// period. report_id and text are mutually exclusive; an absent text field is
// distinct from an empty one, hence the pointers.
type Record struct {
	MessageID int64   `json:"message_id"`
	Timestamp string  `json:"timestamp"`
	ReportID  *int64  `json:"report_id,omitempty"`
	Text      *string `json:"text,omitempty"`
}

type Kind int

const (
	KindReport Kind = iota
	KindText
)

// Message is a validated record. Exactly one of the two cases holds; the
// fields are unexported so a malformed value cannot be built outside the
// constructors and Record.Validate.
type Message struct {
	id        int64
	timestamp string
	kind      Kind
	reportID  int64
	text      string
}

func NewReportMessage(id int64, timestamp string, reportID int64) Message {
	return Message{id: id, timestamp: timestamp, kind: KindReport, reportID: reportID}
}

func NewTextMessage(id int64, timestamp string, text string) Message {
	return Message{id: id, timestamp: timestamp, kind: KindText, text: text}
}

// Validate converts the wire record into the tagged form. Records with both
// or neither of report_id/text fail with ErrMalformed.
func (r Record) Validate() (Message, error) {
	switch {
	case r.ReportID != nil && r.Text != nil:
		return Message{}, fmt.Errorf("%w: message %d has both report_id and text", ErrMalformed, r.MessageID)
	case r.ReportID == nil && r.Text == nil:
		return Message{}, fmt.Errorf("%w: message %d has neither report_id nor text", ErrMalformed, r.MessageID)
	case r.ReportID != nil:
		return NewReportMessage(r.MessageID, r.Timestamp, *r.ReportID), nil
	default:
		return NewTextMessage(r.MessageID, r.Timestamp, *r.Text), nil
	}
}

func (m Message) ID() int64         { return m.id }
func (m Message) Timestamp() string { return m.timestamp }
func (m Message) Kind() Kind        { return m.kind }

// ReportID returns the referenced report id; valid only for KindReport.
func (m Message) ReportID() int64 { return m.reportID }

// Text returns the free-form text; valid only for KindText.
func (m Message) Text() string { return m.text }
