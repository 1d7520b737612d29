package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
)

type PublicationStatus string

const (
	ToBePublished PublicationStatus = "TO_BE_PUBLISHED"
	Published     PublicationStatus = "PUBLISHED"
	ToBeWithdrawn PublicationStatus = "TO_BE_WITHDRAWN"
	Withdrawn     PublicationStatus = "WITHDRAWN"
)

func (s PublicationStatus) IsActive() bool {
	return s == ToBePublished || s == Published
}

// PublishedObject tracks one file placed in the repository. Trust anchor
// certificates are published objects without an issuing key pair.
type PublishedObject struct {
	ID               uint              `json:"id" gorm:"primaryKey"`
	IssuingKeyPairID *uint             `json:"issuing_key_pair_id,omitempty" gorm:"index"`
	URI              string            `json:"uri" gorm:"column:uri;index"`
	Content          []byte            `json:"content"`
	ContentHash      string            `json:"content_hash"`
	Status           PublicationStatus `json:"status" gorm:"index"`
	ValidityEnd      time.Time         `json:"validity_end"`
	TrustAnchor      bool              `json:"trust_anchor"`
	StatusChangedAt  time.Time         `json:"status_changed_at"`
	CreatedAt        time.Time         `json:"created_at"`
}

func (PublishedObject) TableName() string {
	return "published_objects"
}

func NewPublishedObject(issuingKeyPairID *uint, uri string, content []byte, validityEnd time.Time, now time.Time) *PublishedObject {
	return &PublishedObject{
		IssuingKeyPairID: issuingKeyPairID,
		URI:              uri,
		Content:          content,
		ContentHash:      ContentHash(content),
		Status:           ToBePublished,
		ValidityEnd:      validityEnd.UTC(),
		StatusChangedAt:  now.UTC(),
	}
}

func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (o *PublishedObject) transitionError(op string) error {
	return fmt.Errorf("%w: cannot %s object %s in status %s", errs.ErrPublishedObjectTransition, op, o.URI, o.Status)
}

func (o *PublishedObject) set(status PublicationStatus, now time.Time) bool {
	if o.Status == status {
		return false
	}
	o.Status = status
	o.StatusChangedAt = now.UTC()
	return true
}

// Publish schedules the object for (re)publication.
func (o *PublishedObject) Publish(now time.Time) (bool, error) {
	switch o.Status {
	case ToBePublished, Published:
		return o.set(ToBePublished, now), nil
	default:
		return false, o.transitionError("publish")
	}
}

// Published confirms the repository holds the object.
func (o *PublishedObject) Published(now time.Time) (bool, error) {
	switch o.Status {
	case ToBePublished, Published:
		return o.set(Published, now), nil
	default:
		return false, o.transitionError("confirm publication of")
	}
}

// Withdraw schedules removal from the repository. An object that never
// reached the repository is withdrawn immediately.
func (o *PublishedObject) Withdraw(now time.Time) bool {
	switch o.Status {
	case ToBePublished:
		return o.set(Withdrawn, now)
	case Published:
		return o.set(ToBeWithdrawn, now)
	default:
		return false
	}
}

// Withdrawn confirms the repository no longer holds the object.
func (o *PublishedObject) Withdrawn(now time.Time) (bool, error) {
	switch o.Status {
	case ToBeWithdrawn, Withdrawn:
		return o.set(Withdrawn, now), nil
	default:
		return false, o.transitionError("confirm withdrawal of")
	}
}
