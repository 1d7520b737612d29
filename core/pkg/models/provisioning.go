package models

import "time"

// DefaultResourceClassName is the only resource class parents hand out.
const DefaultResourceClassName = "DEFAULT"

type ResourceClassListQuery struct {
	Resources ResourceSet `json:"resources"`
}

type ResourceClassListResponse struct {
	ClassName            string      `json:"class_name"`
	CertifiableResources ResourceSet `json:"certifiable_resources"`
}

// HasClass reports whether the parent offers a resource class at all.
func (r ResourceClassListResponse) HasClass() bool {
	return !r.CertifiableResources.IsEmpty()
}

// ProvisioningRequest is a message a child sends to its parent after
// processing a resource class list response.
type ProvisioningRequest interface {
	RequestType() ProvisioningRequestType
	SubjectKey() string
}

type CertificateIssuanceRequest struct {
	ClassName        string         `json:"class_name"`
	SubjectPublicKey []byte         `json:"subject_public_key"`
	SubjectKeyID     string         `json:"subject_key_id"`
	Resources        ResourceSet    `json:"resources"`
	SIA              SIADescriptors `json:"sia"`
}

func (CertificateIssuanceRequest) RequestType() ProvisioningRequestType {
	return ProvisioningRequestIssuance
}

func (r CertificateIssuanceRequest) SubjectKey() string {
	return r.SubjectKeyID
}

type CertificateRevocationRequest struct {
	ClassName        string `json:"class_name"`
	SubjectPublicKey []byte `json:"subject_public_key"`
	SubjectKeyID     string `json:"subject_key_id"`
}

func (CertificateRevocationRequest) RequestType() ProvisioningRequestType {
	return ProvisioningRequestRevocation
}

func (r CertificateRevocationRequest) SubjectKey() string {
	return r.SubjectKeyID
}

// IssuedCertificate is the certificate a parent returns in an issuance
// response.
type IssuedCertificate struct {
	SerialNumber   string      `json:"serial_number"`
	Subject        string      `json:"subject"`
	Issuer         string      `json:"issuer"`
	Resources      ResourceSet `json:"resources"`
	NotBefore      time.Time   `json:"not_before"`
	NotAfter       time.Time   `json:"not_after"`
	PublicationURI string      `json:"publication_uri"`
	Encoded        []byte      `json:"encoded"`
}

type CertificateIssuanceResponse struct {
	ClassName    string            `json:"class_name"`
	SubjectKeyID string            `json:"subject_key_id"`
	Certificate  IssuedCertificate `json:"certificate"`
}

type CertificateRevocationResponse struct {
	ClassName    string `json:"class_name"`
	SubjectKeyID string `json:"subject_key_id"`
}

func IssuedCertificateFrom(c *OutgoingResourceCertificate) IssuedCertificate {
	return IssuedCertificate{
		SerialNumber:   c.SerialNumber,
		Subject:        c.Subject,
		Issuer:         c.Issuer,
		Resources:      c.Resources,
		NotBefore:      c.NotBefore,
		NotAfter:       c.NotAfter,
		PublicationURI: c.PublicationURI,
		Encoded:        c.Encoded,
	}
}
