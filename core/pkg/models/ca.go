package models

import (
	"strings"
	"time"
)

type CAType string

const (
	CATypeAllResources CAType = "ALL_RESOURCES"
	CATypeRoot         CAType = "ROOT"
	CATypeIntermediate CAType = "INTERMEDIATE"
	CATypeHosted       CAType = "HOSTED"
	CATypeNonHosted    CAType = "NONHOSTED"
)

// IsManaged reports whether CAs of this type keep their own key pairs.
func (t CAType) IsManaged() bool {
	switch t {
	case CATypeAllResources, CATypeRoot, CATypeIntermediate, CATypeHosted:
		return true
	default:
		return false
	}
}

// CanBeParentOf reports whether a CA of type t can issue certificates to a
// child of the given type.
func (t CAType) CanBeParentOf(child CAType) bool {
	switch t {
	case CATypeAllResources:
		return child == CATypeRoot
	case CATypeRoot, CATypeIntermediate:
		return child == CATypeIntermediate || child == CATypeHosted || child == CATypeNonHosted
	default:
		return false
	}
}

type VersionedID struct {
	ID      uint  `json:"id" validate:"required"`
	Version int64 `json:"version"`
}

type CertificateAuthority struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Version        int64     `json:"version"`
	UUID           string    `json:"uuid" gorm:"column:uuid;uniqueIndex"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"-" gorm:"uniqueIndex"`
	Type           CAType    `json:"type"`
	ParentID       *uint     `json:"parent_id,omitempty" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (CertificateAuthority) TableName() string {
	return "certificate_authorities"
}

func (ca CertificateAuthority) VersionedID() VersionedID {
	return VersionedID{ID: ca.ID, Version: ca.Version}
}

func (ca CertificateAuthority) HasParent() bool {
	return ca.ParentID != nil && *ca.ParentID != 0
}

// NormalizeCAName returns the case-insensitive form of an X.500 CA name.
func NormalizeCAName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
