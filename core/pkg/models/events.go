package models

import "time"

const RPKISource = "lrn://service/rpki-ca"

type EventType string

const (
	EventCACreated EventType = "rpki.ca.create"
	EventCADeleted EventType = "rpki.ca.delete"

	EventKeyPairCreated         EventType = "rpki.keypair.create"
	EventKeyPairActivated       EventType = "rpki.keypair.activate"
	EventKeyPairDeactivated     EventType = "rpki.keypair.deactivate"
	EventKeyPairRevokeRequested EventType = "rpki.keypair.revoke-request"
	EventKeyPairRevoked         EventType = "rpki.keypair.revoke"
	EventKeyPairDeleted         EventType = "rpki.keypair.delete"

	EventIncomingCertificateUpdated EventType = "rpki.incoming-certificate.update"
	EventIncomingCertificateChanged EventType = "rpki.incoming-certificate.changed"

	EventOutgoingCertificateIssued  EventType = "rpki.outgoing-certificate.issue"
	EventOutgoingCertificateRevoked EventType = "rpki.outgoing-certificate.revoke"
	EventOutgoingCertificateExpired EventType = "rpki.outgoing-certificate.expire"

	EventNonHostedPublicKeyUpdated EventType = "rpki.nonhosted-public-key.update"
	EventManifestAndCRLIssued      EventType = "rpki.publication.manifest-crl.issue"
	EventPublishedObjectsWithdrawn EventType = "rpki.publication.withdraw"
)

// Event is a domain event emitted while handling a command. Events are
// returned with the command result instead of being dispatched globally.
type Event struct {
	Type      EventType         `json:"type"`
	CAID      uint              `json:"ca_id"`
	Subject   string            `json:"subject"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewEvent(eventType EventType, caID uint, subject string, now time.Time) Event {
	return Event{Type: eventType, CAID: caID, Subject: subject, Timestamp: now.UTC()}
}

func (e Event) With(key, value string) Event {
	data := make(map[string]string, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}
