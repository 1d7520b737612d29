package models

import (
	"fmt"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
)

type KeyPairStatus string

const (
	KeyPairNew        KeyPairStatus = "NEW"
	KeyPairPending    KeyPairStatus = "PENDING"
	KeyPairCurrent    KeyPairStatus = "CURRENT"
	KeyPairOld        KeyPairStatus = "OLD"
	KeyPairMustRevoke KeyPairStatus = "MUSTREVOKE"
	KeyPairRevoked    KeyPairStatus = "REVOKED"
)

// IsRevokable reports whether a key pair in this status may be revoked.
func (s KeyPairStatus) IsRevokable() bool {
	switch s {
	case KeyPairPending, KeyPairCurrent, KeyPairOld, KeyPairMustRevoke:
		return true
	default:
		return false
	}
}

// IsPublishable reports whether objects signed by a key pair in this status
// belong in the repository.
func (s KeyPairStatus) IsPublishable() bool {
	switch s {
	case KeyPairPending, KeyPairCurrent, KeyPairOld:
		return true
	default:
		return false
	}
}

type KeyPair struct {
	ID               uint                        `json:"id" gorm:"primaryKey"`
	CAID             uint                        `json:"ca_id" gorm:"column:ca_id;index"`
	Name             string                      `json:"name"`
	Algorithm        KeyType                     `json:"algorithm" gorm:"serializer:text"`
	Size             int                         `json:"size"`
	EngineID         string                      `json:"engine_id"`
	KeyID            string                      `json:"key_id"`
	PublicKey        []byte                      `json:"public_key"`
	SubjectKeyID     string                      `json:"subject_key_id" gorm:"column:subject_key_id;index"`
	Status           KeyPairStatus               `json:"status"`
	StatusHistory    map[KeyPairStatus]time.Time `json:"status_history" gorm:"serializer:json"`
	CRLFilename      string                      `json:"crl_filename" gorm:"column:crl_filename"`
	ManifestFilename string                      `json:"manifest_filename"`
	CRLNumber        int64                       `json:"crl_number" gorm:"column:crl_number"`
	ManifestNumber   int64                       `json:"manifest_number"`
	PublishedState   string                      `json:"published_state"`
	PublishedUntil   time.Time                   `json:"published_until"`
	CreatedAt        time.Time                   `json:"created_at"`
}

func (KeyPair) TableName() string {
	return "key_pairs"
}

func (kp *KeyPair) setStatus(status KeyPairStatus, now time.Time) {
	if kp.StatusHistory == nil {
		kp.StatusHistory = map[KeyPairStatus]time.Time{}
	}
	kp.Status = status
	kp.StatusHistory[status] = now.UTC()
}

func (kp *KeyPair) transitionError(to KeyPairStatus) error {
	return fmt.Errorf("%w: key pair %s cannot go from %s to %s", errs.ErrKeyPairStatusTransition, kp.Name, kp.Status, to)
}

// StatusSince returns when the key pair entered the given status.
func (kp *KeyPair) StatusSince(status KeyPairStatus) (time.Time, bool) {
	t, ok := kp.StatusHistory[status]
	return t, ok
}

// MarkPending moves a NEW key pair to PENDING once it holds its first
// incoming certificate. Any other status is left untouched.
func (kp *KeyPair) MarkPending(now time.Time) bool {
	if kp.Status != KeyPairNew {
		return false
	}
	kp.setStatus(KeyPairPending, now)
	return true
}

func (kp *KeyPair) Activate(now time.Time, hasIncomingCertificate bool) error {
	if kp.Status != KeyPairPending || !hasIncomingCertificate {
		return kp.transitionError(KeyPairCurrent)
	}
	kp.setStatus(KeyPairCurrent, now)
	return nil
}

func (kp *KeyPair) Deactivate(now time.Time) error {
	if kp.Status != KeyPairCurrent {
		return kp.transitionError(KeyPairOld)
	}
	kp.setStatus(KeyPairOld, now)
	return nil
}

func (kp *KeyPair) RequestRevoke(now time.Time) error {
	switch kp.Status {
	case KeyPairPending, KeyPairCurrent, KeyPairOld:
		kp.setStatus(KeyPairMustRevoke, now)
		return nil
	case KeyPairMustRevoke:
		return nil
	default:
		return kp.transitionError(KeyPairMustRevoke)
	}
}

func (kp *KeyPair) Revoke(now time.Time) error {
	if !kp.Status.IsRevokable() {
		return kp.transitionError(KeyPairRevoked)
	}
	kp.setStatus(KeyPairRevoked, now)
	return nil
}

// IsRemovable reports whether the key pair can be deleted.
func (kp *KeyPair) IsRemovable(hasIncomingCertificate bool) bool {
	return kp.Status == KeyPairRevoked && !hasIncomingCertificate
}
