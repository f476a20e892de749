// Package msg defines the gateway messages the store persists and the codec
// that turns them into opaque blobs.
package msg

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminates the payload carried by a Msg.
type Type string

const (
	TypeSMS       Type = "sms"
	TypeAck       Type = "ack"
	TypeAdmin     Type = "admin"
	TypeHeartbeat Type = "heartbeat"
)

// SMSType classifies an sms by direction.
type SMSType int

const (
	SMSTypeUndef SMSType = iota
	MO
	MTPush
	MTReply
	ReportMO
	ReportMT
)

// String returns the label used in status output.
func (t SMSType) String() string {
	switch t {
	case MO:
		return "MO"
	case MTPush:
		return "MT-PUSH"
	case MTReply:
		return "MT-REPLY"
	case ReportMO:
		return "DLR-MO"
	case ReportMT:
		return "DLR-MT"
	}
	return ""
}

// Coding is the data coding scheme of the message body.
type Coding int

const (
	CodingUndef Coding = iota
	Coding7Bit
	Coding8Bit
	CodingUCS2
)

// Binary reports whether a body in this coding is not printable text.
// Undefined coding counts as binary only when a UDH is present.
func (c Coding) Binary(hasUDH bool) bool {
	return c == Coding8Bit || c == CodingUCS2 || (c == CodingUndef && hasUDH)
}

// AckStatus is the outcome an ack reports for the referenced sms.
type AckStatus int

const (
	AckSuccess AckStatus = iota
	AckFailed
	AckFailedTmp
	AckBuffered
)

// SMS is a short message in flight through the gateway.
type SMS struct {
	ID       uuid.UUID `json:"id"`
	SMSType  SMSType   `json:"sms_type"`
	Time     time.Time `json:"time"`
	Sender   string    `json:"sender,omitempty"`
	Receiver string    `json:"receiver,omitempty"`
	SMSCID   string    `json:"smsc_id,omitempty"`
	BoxCID   string    `json:"boxc_id,omitempty"`
	UDHData  []byte    `json:"udh_data,omitempty"`
	MsgData  []byte    `json:"msg_data,omitempty"`
	Coding   Coding    `json:"coding"`
}

// Ack acknowledges (or rejects) a previously seen sms.
type Ack struct {
	ID   uuid.UUID `json:"id"`
	Time time.Time `json:"time"`
	Nack AckStatus `json:"nack"`
}

// Msg is the envelope handed to the store.
type Msg struct {
	Type Type `json:"type"`
	SMS  *SMS `json:"sms,omitempty"`
	Ack  *Ack `json:"ack,omitempty"`
}

// NewSMS wraps s in a Msg.
func NewSMS(s SMS) *Msg {
	return &Msg{Type: TypeSMS, SMS: &s}
}

// NewAck builds an ack referencing the sms carried by m.
func NewAck(m *Msg, status AckStatus) *Msg {
	a := &Ack{Nack: status}
	if m != nil && m.SMS != nil {
		a.ID = m.SMS.ID
		a.Time = m.SMS.Time
	}
	return &Msg{Type: TypeAck, Ack: a}
}
