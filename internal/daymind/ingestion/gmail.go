package ingestion

import (
	"strconv"

	"github.com/soraya-vance/daymind/internal/daymind/parser"
)

// GmailCodec orders cursors by (internalDateSeconds, message_id), both
// ascending.
type GmailCodec struct{}

func (GmailCodec) Of(msg parser.InboundMessage) Cursor {
	return Cursor{
		Primary:   strconv.FormatInt(msg.ReceivedAtUTC.Unix(), 10),
		Secondary: msg.ProviderMessageID,
	}
}

func (GmailCodec) Less(a, b Cursor) bool {
	aSec, aErr := strconv.ParseInt(a.Primary, 10, 64)
	bSec, bErr := strconv.ParseInt(b.Primary, 10, 64)
	if aErr != nil || bErr != nil || aSec != bSec {
		return aSec < bSec
	}
	return a.Secondary < b.Secondary
}
