package service

import (
	"encoding/xml"

	"github.com/gofrs/uuid/v5"

	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
)

// DFRNVersion is the protocol version this node speaks.
const DFRNVersion = "2.21"

// ConfirmStatus is the wire status vocabulary. The four values are the
// entire protocol surface and must be preserved exactly for
// interoperability with existing counterpart nodes.
type ConfirmStatus int

const (
	StatusSuccess   ConfirmStatus = 0
	StatusCollision ConfirmStatus = 1 // duplicate id ("birthday paradox")
	StatusTransient ConfirmStatus = 2 // caller may retry later
	StatusFatal     ConfirmStatus = 3
)

// ConfirmReply is the XML document answering a confirm handshake POST.
type ConfirmReply struct {
	XMLName xml.Name `xml:"dfrn_confirm"`
	Status  int      `xml:"status"`
	Message string   `xml:"message,omitempty"`
}

// ParseConfirmReply decodes a counterpart's confirm response body.
func ParseConfirmReply(body []byte) (*ConfirmReply, error) {
	var r ConfirmReply
	if err := xml.Unmarshal(body, &r); err != nil {
		return nil, errs.ErrDecryptFailed
	}
	return &r, nil
}

// PollReply is the XML document answering a poll challenge request.
type PollReply struct {
	XMLName   xml.Name `xml:"dfrn_poll"`
	Status    int      `xml:"status"`
	Version   string   `xml:"dfrn_version"`
	DFRNID    string   `xml:"dfrn_id,omitempty"`
	Challenge string   `xml:"challenge,omitempty"`
	SEC       string   `xml:"sec,omitempty"`
	Message   string   `xml:"message,omitempty"`
}

// ConfirmOutcome is the result of one confirm exchange, surfaced both to
// the wire (status/message) and to local callers (contact, relation).
type ConfirmOutcome struct {
	Status    ConfirmStatus
	Message   string
	ContactID uuid.UUID
	NewRel    model.Relation
}
