package models

import "time"

type ProvisioningRequestType string

const (
	ProvisioningRequestList       ProvisioningRequestType = "LIST"
	ProvisioningRequestIssuance   ProvisioningRequestType = "ISSUANCE"
	ProvisioningRequestRevocation ProvisioningRequestType = "REVOCATION"
)

// NonHostedPublicKey is a public key of a delegated CA. The private key never
// leaves the child; only the latest request made with the key is tracked.
type NonHostedPublicKey struct {
	ID                    uint                    `json:"id" gorm:"primaryKey"`
	CAID                  uint                    `json:"ca_id" gorm:"column:ca_id;uniqueIndex:idx_nonhosted_ca_ski"`
	SubjectKeyID          string                  `json:"subject_key_id" gorm:"column:subject_key_id;uniqueIndex:idx_nonhosted_ca_ski"`
	PublicKey             []byte                  `json:"public_key"`
	LatestRequestType     ProvisioningRequestType `json:"latest_request_type"`
	RequestedResourceSets RequestedResourceSets   `json:"requested_resource_sets" gorm:"serializer:json"`
	RequestedSIA          SIADescriptors          `json:"requested_sia" gorm:"column:requested_sia;serializer:json"`
	CreatedAt             time.Time               `json:"created_at"`
	UpdatedAt             time.Time               `json:"updated_at"`
}

func (NonHostedPublicKey) TableName() string {
	return "non_hosted_public_keys"
}

func (k *NonHostedPublicKey) IsRevoked() bool {
	return k.LatestRequestType == ProvisioningRequestRevocation
}
