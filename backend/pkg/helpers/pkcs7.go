package helpers

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"

	"go.mozilla.org/pkcs7"
)

// CreateSignedObject wraps econtent in a CMS SignedData of the given content
// type, signed by the EE certificate and key of the object.
func CreateSignedObject(econtent []byte, contentType asn1.ObjectIdentifier, signer crypto.Signer, signerCert *x509.Certificate) ([]byte, error) {
	if signerCert == nil {
		return nil, errors.New("signer certificate is required")
	}

	signedData, err := pkcs7.NewSignedData(econtent)
	if err != nil {
		return nil, fmt.Errorf("failed to create signed data: %w", err)
	}
	// must be set before AddSigner, the content-type attribute is copied from it
	signedData.GetSignedData().ContentInfo.ContentType = contentType
	signedData.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := signedData.AddSigner(signerCert, signer, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("failed to add signer: %w", err)
	}

	der, err := signedData.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to finish signed data: %w", err)
	}

	return der, nil
}

// ParseSignedObject decodes a CMS SignedData and checks its signature against
// the embedded EE certificate.
func ParseSignedObject(der []byte) (*pkcs7.PKCS7, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, fmt.Errorf("could not parse signed object: %w", err)
	}

	if err := p7.Verify(); err != nil {
		return nil, fmt.Errorf("invalid signed object signature: %w", err)
	}

	return p7, nil
}

type cmsContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type cmsSignedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue
	EncapContentInfo cmsContentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos      asn1.RawValue
}

// SignedObjectContentType returns the eContentType of a CMS SignedData.
func SignedObjectContentType(der []byte) (asn1.ObjectIdentifier, error) {
	var outer cmsContentInfo
	if _, err := asn1.Unmarshal(der, &outer); err != nil {
		return nil, fmt.Errorf("could not decode content info: %w", err)
	}
	if !outer.ContentType.Equal(pkcs7.OIDSignedData) {
		return nil, fmt.Errorf("content type %s is not signed data", outer.ContentType)
	}

	var sd cmsSignedData
	if _, err := asn1.Unmarshal(outer.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("could not decode signed data: %w", err)
	}
	return sd.EncapContentInfo.ContentType, nil
}
