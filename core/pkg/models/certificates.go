package models

import (
	"sort"
	"time"
)

type SIAMethod string

const (
	SIACARepository SIAMethod = "caRepository"
	SIAManifest     SIAMethod = "rpkiManifest"
	SIANotify       SIAMethod = "rpkiNotify"
	SIASignedObject SIAMethod = "signedObject"
)

// SIADescriptor is a Subject Information Access entry.
type SIADescriptor struct {
	Method   SIAMethod `json:"method"`
	Location string    `json:"location"`
}

type SIADescriptors []SIADescriptor

func (s SIADescriptors) sorted() SIADescriptors {
	out := append(SIADescriptors{}, s...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Method != out[j].Method {
			return out[i].Method < out[j].Method
		}
		return out[i].Location < out[j].Location
	})
	return out
}

// Equal compares descriptor sets ignoring order.
func (s SIADescriptors) Equal(other SIADescriptors) bool {
	if len(s) != len(other) {
		return false
	}
	a, b := s.sorted(), other.sorted()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s SIADescriptors) Location(method SIAMethod) string {
	for _, d := range s {
		if d.Method == method {
			return d.Location
		}
	}
	return ""
}

type ValidityPeriod struct {
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
}

// IncomingResourceCertificate is the certificate a key pair received from its parent.
type IncomingResourceCertificate struct {
	ID             uint        `json:"id" gorm:"primaryKey"`
	KeyPairID      uint        `json:"key_pair_id" gorm:"uniqueIndex"`
	CAID           uint        `json:"ca_id" gorm:"column:ca_id;index"`
	SerialNumber   string      `json:"serial_number"`
	Subject        string      `json:"subject"`
	Issuer         string      `json:"issuer"`
	Resources      ResourceSet `json:"resources" gorm:"serializer:text"`
	NotBefore      time.Time   `json:"not_before"`
	NotAfter       time.Time   `json:"not_after"`
	PublicationURI string      `json:"publication_uri" gorm:"column:publication_uri"`
	Encoded        []byte      `json:"encoded"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (IncomingResourceCertificate) TableName() string {
	return "incoming_resource_certificates"
}

type OutgoingCertificateStatus string

const (
	OutgoingCurrent OutgoingCertificateStatus = "CURRENT"
	OutgoingRevoked OutgoingCertificateStatus = "REVOKED"
	OutgoingExpired OutgoingCertificateStatus = "EXPIRED"
)

// OutgoingResourceCertificate is a certificate issued by one of the CA's key pairs.
type OutgoingResourceCertificate struct {
	ID                    uint                      `json:"id" gorm:"primaryKey"`
	SigningKeyPairID      uint                      `json:"signing_key_pair_id" gorm:"index"`
	SubjectKeyID          string                    `json:"subject_key_id" gorm:"column:subject_key_id;index"`
	SubjectPublicKey      []byte                    `json:"subject_public_key"`
	SerialNumber          string                    `json:"serial_number"`
	Subject               string                    `json:"subject"`
	Issuer                string                    `json:"issuer"`
	Resources             ResourceSet               `json:"resources" gorm:"serializer:text"`
	NotBefore             time.Time                 `json:"not_before"`
	NotAfter              time.Time                 `json:"not_after"`
	SIA                   SIADescriptors            `json:"sia" gorm:"column:sia;serializer:json"`
	PublicationURI        string                    `json:"publication_uri" gorm:"column:publication_uri"`
	SigningCertificateURI string                    `json:"signing_certificate_uri" gorm:"column:signing_certificate_uri"`
	Encoded               []byte                    `json:"encoded"`
	Status                OutgoingCertificateStatus `json:"status" gorm:"index"`
	RevocationTime        *time.Time                `json:"revocation_time,omitempty"`
	RequestingCAID        *uint                     `json:"requesting_ca_id,omitempty" gorm:"column:requesting_ca_id;index"`
	Embedded              bool                      `json:"embedded"`
	PublishedObjectID     *uint                     `json:"published_object_id,omitempty"`
	CreatedAt             time.Time                 `json:"created_at"`
}

func (OutgoingResourceCertificate) TableName() string {
	return "outgoing_resource_certificates"
}

func (c *OutgoingResourceCertificate) IsCurrent() bool {
	return c.Status == OutgoingCurrent
}

// Revoke marks the certificate revoked and forgets the requesting CA. Revoking
// a certificate that is no longer current is a no-op.
func (c *OutgoingResourceCertificate) Revoke(now time.Time) bool {
	if c.Status != OutgoingCurrent {
		return false
	}
	t := now.UTC()
	c.Status = OutgoingRevoked
	c.RevocationTime = &t
	c.RequestingCAID = nil
	return true
}

func (c *OutgoingResourceCertificate) Expire() bool {
	if c.Status != OutgoingCurrent {
		return false
	}
	c.Status = OutgoingExpired
	c.RequestingCAID = nil
	return true
}

func (c *OutgoingResourceCertificate) Validity() ValidityPeriod {
	return ValidityPeriod{NotBefore: c.NotBefore, NotAfter: c.NotAfter}
}
