package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/jkassis/bbstore/internal/msg"
)

// StatusFormat selects the rendering used by Status.
type StatusFormat int

const (
	StatusPlain StatusFormat = iota
	StatusHTML
	StatusXML
)

// ParseStatusFormat maps "plain", "html" and "xml" to a StatusFormat.
// Anything else is plain.
func ParseStatusFormat(s string) StatusFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "html":
		return StatusHTML
	case "xml":
		return StatusXML
	}
	return StatusPlain
}

const (
	plainHeader = "[SMS ID] [Type] [Time] [Sender] [Receiver] [SMSC ID] [BOX ID] [UDH] [Message]\n"
	plainRow    = "[%s] [%s] [%s] [%s] [%s] [%s] [%s] [%s] [%s]\n"

	htmlHeader = "<table border=1>\n" +
		"<tr><td>SMS ID</td><td>Type</td><td>Time</td><td>Sender</td><td>Receiver</td>" +
		"<td>SMSC ID</td><td>BOX ID</td><td>UDH</td><td>Message</td>" +
		"</tr>\n"
	htmlRow = "<tr><td>%s</td><td>%s</td>" +
		"<td>%s</td>" +
		"<td>%s</td><td>%s</td><td>%s</td>" +
		"<td>%s</td><td>%s</td><td>%s</td></tr>\n"
	htmlFooter = "</table>"

	xmlRow = "<message>\n\t<id>%s</id>\n\t<type>%s</type>\n\t" +
		"<time>%s</time>\n\t" +
		"<sender>%s</sender>\n\t" +
		"<receiver>%s</receiver>\n\t<smsc-id>%s</smsc-id>\n\t" +
		"<box-id>%s</box-id>\n\t" +
		"<udh-data>%s</udh-data>\n\t<msg-data>%s</msg-data>\n\t" +
		"</message>\n"

	statusTimeLayout = "2006-01-02 15:04:05"
)

// StatusRow is the rendered view of one stored sms.
type StatusRow struct {
	ID       string
	Type     string
	Time     string
	Sender   string
	Receiver string
	SMSCID   string
	BoxCID   string
	UDH      string
	Message  string
}

// StatusRowMake renders m's fields as text. Binary UDH and bodies become
// uppercase hex.
func StatusRowMake(m *msg.Msg) StatusRow {
	sms := m.SMS
	row := StatusRow{
		ID:       sms.ID.String(),
		Type:     sms.SMSType.String(),
		Time:     sms.Time.UTC().Format(statusTimeLayout),
		Sender:   sms.Sender,
		Receiver: sms.Receiver,
		SMSCID:   sms.SMSCID,
		BoxCID:   sms.BoxCID,
		Message:  string(sms.MsgData),
	}
	hasUDH := len(sms.UDHData) > 0
	if hasUDH {
		row.UDH = strings.ToUpper(hex.EncodeToString(sms.UDHData))
	}
	if len(sms.MsgData) > 0 && sms.Coding.Binary(hasUDH) {
		row.Message = strings.ToUpper(hex.EncodeToString(sms.MsgData))
	}
	return row
}

func (r StatusRow) fields(escape bool) []any {
	vals := []string{r.ID, r.Type, r.Time, r.Sender, r.Receiver, r.SMSCID, r.BoxCID, r.UDH, r.Message}
	out := make([]any, len(vals))
	for i, v := range vals {
		if escape {
			v = html.EscapeString(v)
		}
		out[i] = v
	}
	return out
}

// Status renders every outstanding record. It never fails: unreadable
// records are skipped and a failed enumeration yields header and footer
// only. An inactive store renders as "".
func (s *Store) Status(ctx context.Context, format StatusFormat) string {
	s.mu.RLock()
	backend := s.backend
	if backend == nil {
		s.mu.RUnlock()
		return ""
	}
	// ignore errors, records may disappear underneath us
	records, err := backend.EnumerateAll(ctx, s.table)
	s.mu.RUnlock()
	if err != nil {
		backendErrors.WithLabelValues(s.table, "enumerate").Inc()
		s.logger.Warn("Status could not enumerate store", zap.String("table", s.table), zap.Error(err))
		records = nil
	}

	var b strings.Builder
	var row string
	escape := false
	switch format {
	case StatusHTML:
		b.WriteString(htmlHeader)
		row, escape = htmlRow, true
	case StatusXML:
		row, escape = xmlRow, true
	default:
		b.WriteString(plainHeader)
		row = plainRow
	}

	for _, r := range records {
		m, err := s.unpack(r)
		if err != nil {
			s.logger.Debug("Status skipped unreadable record", zap.String("table", s.table), zap.String("msgID", r.ID), zap.Error(err))
			continue
		}
		fmt.Fprintf(&b, row, StatusRowMake(m).fields(escape)...)
	}

	if format == StatusHTML {
		b.WriteString(htmlFooter)
	}
	return b.String()
}
