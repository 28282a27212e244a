package ingestion

import (
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/parser"
)

// OutlookCodec orders cursors by (receivedDateTime, message_id), both
// ascending, with receivedDateTime compared as ISO-8601 strings.
type OutlookCodec struct{}

func (OutlookCodec) Of(msg parser.InboundMessage) Cursor {
	return Cursor{
		Primary:   msg.ReceivedAtUTC.UTC().Format(time.RFC3339),
		Secondary: msg.ProviderMessageID,
	}
}

func (OutlookCodec) Less(a, b Cursor) bool {
	if a.Primary != b.Primary {
		return a.Primary < b.Primary
	}
	return a.Secondary < b.Secondary
}
