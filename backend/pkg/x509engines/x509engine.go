package x509engines

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/lamassuiot/rpki-core/backend/pkg/helpers"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/engines/crypto/software"
	"github.com/sirupsen/logrus"
)

var (
	OIDContentTypeManifest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 26}
	OIDSHA256              = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
)

// ResourceCertificateEngine builds the RPKI objects of a CA: resource
// certificates, CRLs and manifests. Callers supply the logical content and the
// signing key; the engine only encodes and signs.
type ResourceCertificateEngine struct {
	logger           *logrus.Entry
	softCryptoEngine *software.SoftwareCryptoEngine
}

func NewResourceCertificateEngine(logger *logrus.Entry) ResourceCertificateEngine {
	return ResourceCertificateEngine{
		logger:           logger,
		softCryptoEngine: software.NewSoftwareCryptoEngine(logger),
	}
}

type ResourceCertificateRequest struct {
	SerialNumber         *big.Int
	SubjectPublicKey     crypto.PublicKey
	Resources            models.ResourceSet
	Validity             models.ValidityPeriod
	SIA                  models.SIADescriptors
	CRLURI               string
	IssuerCertificateURI string
}

func (engine ResourceCertificateEngine) template(req ResourceCertificateRequest, ca bool, inherit bool) (*x509.Certificate, error) {
	if req.SerialNumber == nil {
		return nil, errors.New("serial number is required")
	}

	ski, pubDER, err := chelpers.PublicKeySKI(req.SubjectPublicKey)
	if err != nil {
		return nil, err
	}
	rawSKI, err := chelpers.SubjectKeyIdentifier(pubDER)
	if err != nil {
		return nil, err
	}

	exts, err := resourceExtensions(req.Resources, inherit)
	if err != nil {
		return nil, err
	}

	sia, err := siaExtension(req.SIA)
	if err != nil {
		return nil, err
	}
	exts = append(exts, *sia)

	tmpl := &x509.Certificate{
		SerialNumber:          req.SerialNumber,
		Subject:               pkix.Name{CommonName: ski},
		SubjectKeyId:          rawSKI,
		NotBefore:             req.Validity.NotBefore,
		NotAfter:              req.Validity.NotAfter,
		BasicConstraintsValid: ca,
		IsCA:                  ca,
		PolicyIdentifiers:     []asn1.ObjectIdentifier{OIDRPKICertPolicy},
		ExtraExtensions:       exts,
	}

	if ca {
		tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	} else {
		tmpl.KeyUsage = x509.KeyUsageDigitalSignature
	}
	if req.CRLURI != "" {
		tmpl.CRLDistributionPoints = []string{req.CRLURI}
	}
	if req.IssuerCertificateURI != "" {
		tmpl.IssuingCertificateURL = []string{req.IssuerCertificateURI}
	}

	return tmpl, nil
}

// CreateTrustAnchorCertificate self-signs a CA certificate. Trust anchors
// have neither a CRL distribution point nor an issuer certificate.
func (engine ResourceCertificateEngine) CreateTrustAnchorCertificate(ctx context.Context, signer crypto.Signer, req ResourceCertificateRequest) (*x509.Certificate, error) {
	lFunc := chelpers.ConfigureLogger(ctx, engine.logger)

	req.SubjectPublicKey = signer.Public()
	req.CRLURI = ""
	req.IssuerCertificateURI = ""

	tmpl, err := engine.template(req, true, false)
	if err != nil {
		lFunc.Errorf("could not build trust anchor template: %s", err)
		return nil, err
	}

	lFunc.Debugf("self-signing trust anchor %s with serial %s", tmpl.Subject.CommonName, helpers.SerialNumberToHexString(req.SerialNumber))
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, signer.Public(), signer)
	if err != nil {
		lFunc.Errorf("could not sign trust anchor certificate: %s", err)
		return nil, err
	}

	return x509.ParseCertificate(der)
}

// CreateResourceCertificate issues a CA certificate for a child key.
func (engine ResourceCertificateEngine) CreateResourceCertificate(ctx context.Context, req ResourceCertificateRequest, issuer *x509.Certificate, signer crypto.Signer) (*x509.Certificate, error) {
	lFunc := chelpers.ConfigureLogger(ctx, engine.logger)

	tmpl, err := engine.template(req, true, false)
	if err != nil {
		lFunc.Errorf("could not build certificate template: %s", err)
		return nil, err
	}

	lFunc.Debugf("issuing certificate for %s with serial %s, resources: %s", tmpl.Subject.CommonName, helpers.SerialNumberToHexString(req.SerialNumber), req.Resources)
	der, err := x509.CreateCertificate(rand.Reader, tmpl, issuer, req.SubjectPublicKey, signer)
	if err != nil {
		lFunc.Errorf("could not sign certificate: %s", err)
		return nil, err
	}

	return x509.ParseCertificate(der)
}

type RevokedCertificate struct {
	SerialNumber   *big.Int
	RevocationTime time.Time
}

type CRLInput struct {
	Number     int64
	ThisUpdate time.Time
	NextUpdate time.Time
	Revoked    []RevokedCertificate
}

func (engine ResourceCertificateEngine) CreateCRL(ctx context.Context, input CRLInput, issuer *x509.Certificate, signer crypto.Signer) ([]byte, error) {
	lFunc := chelpers.ConfigureLogger(ctx, engine.logger)

	entries := make([]x509.RevocationListEntry, 0, len(input.Revoked))
	for _, r := range input.Revoked {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   r.SerialNumber,
			RevocationTime: r.RevocationTime.UTC(),
		})
	}

	lFunc.Debugf("creating CRL %d for %s with %d entries", input.Number, issuer.Subject.CommonName, len(entries))
	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(input.Number),
		ThisUpdate:                input.ThisUpdate.UTC(),
		NextUpdate:                input.NextUpdate.UTC(),
		RevokedCertificateEntries: entries,
	}, issuer, signer)
	if err != nil {
		lFunc.Errorf("could not sign CRL: %s", err)
		return nil, err
	}

	return der, nil
}

type ManifestEntry struct {
	FileName string
	Content  []byte
}

type ManifestInput struct {
	Number               int64
	ThisUpdate           time.Time
	NextUpdate           time.Time
	ManifestURI          string
	CRLURI               string
	IssuerCertificateURI string
	EESerialNumber       *big.Int
	Entries              []ManifestEntry
}

type manifestContent struct {
	ManifestNumber *big.Int
	ThisUpdate     time.Time `asn1:"generalized"`
	NextUpdate     time.Time `asn1:"generalized"`
	FileHashAlg    asn1.ObjectIdentifier
	FileList       []fileAndHash
}

type fileAndHash struct {
	File string `asn1:"ia5"`
	Hash asn1.BitString
}

// CreateManifest signs the manifest with a one-time EE certificate issued by
// issuer and returns it together with that certificate. The EE key is
// discarded once the object is signed.
func (engine ResourceCertificateEngine) CreateManifest(ctx context.Context, input ManifestInput, issuer *x509.Certificate, signer crypto.Signer) ([]byte, *x509.Certificate, error) {
	lFunc := chelpers.ConfigureLogger(ctx, engine.logger)

	eeKey, err := engine.oneTimeKey(issuer)
	if err != nil {
		lFunc.Errorf("could not create one-time EE key: %s", err)
		return nil, nil, err
	}

	// the CMS signing time has to fall strictly inside the EE validity
	eeValidity := models.ValidityPeriod{NotBefore: input.ThisUpdate.Add(-time.Minute), NotAfter: input.NextUpdate}

	eeTmpl, err := engine.template(ResourceCertificateRequest{
		SerialNumber:         input.EESerialNumber,
		SubjectPublicKey:     eeKey.Public(),
		Validity:             eeValidity,
		SIA:                  models.SIADescriptors{{Method: models.SIASignedObject, Location: input.ManifestURI}},
		CRLURI:               input.CRLURI,
		IssuerCertificateURI: input.IssuerCertificateURI,
	}, false, true)
	if err != nil {
		return nil, nil, err
	}

	eeDER, err := x509.CreateCertificate(rand.Reader, eeTmpl, issuer, eeKey.Public(), signer)
	if err != nil {
		lFunc.Errorf("could not sign manifest EE certificate: %s", err)
		return nil, nil, err
	}
	eeCert, err := x509.ParseCertificate(eeDER)
	if err != nil {
		return nil, nil, err
	}

	content := manifestContent{
		ManifestNumber: big.NewInt(input.Number),
		ThisUpdate:     input.ThisUpdate.UTC(),
		NextUpdate:     input.NextUpdate.UTC(),
		FileHashAlg:    OIDSHA256,
		FileList:       make([]fileAndHash, 0, len(input.Entries)),
	}
	for _, entry := range input.Entries {
		sum := sha256.Sum256(entry.Content)
		content.FileList = append(content.FileList, fileAndHash{
			File: entry.FileName,
			Hash: asn1.BitString{Bytes: sum[:], BitLength: len(sum) * 8},
		})
	}

	econtent, err := asn1.Marshal(content)
	if err != nil {
		return nil, nil, fmt.Errorf("could not encode manifest: %w", err)
	}

	der, err := helpers.CreateSignedObject(econtent, OIDContentTypeManifest, eeKey, eeCert)
	if err != nil {
		lFunc.Errorf("could not sign manifest: %s", err)
		return nil, nil, err
	}

	lFunc.Debugf("created manifest %d with %d entries at %s", input.Number, len(input.Entries), input.ManifestURI)
	return der, eeCert, nil
}

// oneTimeKey creates a key of the same family as the issuer's.
func (engine ResourceCertificateEngine) oneTimeKey(issuer *x509.Certificate) (crypto.Signer, error) {
	if _, ok := issuer.PublicKey.(*ecdsa.PublicKey); ok {
		_, key, err := engine.softCryptoEngine.CreateECDSAPrivateKey(elliptic.P256())
		return key, err
	}

	_, key, err := engine.softCryptoEngine.CreateRSAPrivateKey(2048)
	return key, err
}

// Manifest is the decoded content of a signed manifest.
type Manifest struct {
	Number     int64
	ThisUpdate time.Time
	NextUpdate time.Time
	Files      map[string][]byte
	EE         *x509.Certificate
}

// ParseManifest verifies the CMS signature of a manifest and decodes its
// content.
func ParseManifest(der []byte) (*Manifest, error) {
	p7, err := helpers.ParseSignedObject(der)
	if err != nil {
		return nil, err
	}

	contentType, err := helpers.SignedObjectContentType(der)
	if err != nil {
		return nil, err
	}
	if !contentType.Equal(OIDContentTypeManifest) {
		return nil, fmt.Errorf("signed object content type %s is not a manifest", contentType)
	}

	var content manifestContent
	if _, err := asn1.Unmarshal(p7.Content, &content); err != nil {
		return nil, fmt.Errorf("could not decode manifest content: %w", err)
	}

	m := &Manifest{
		Number:     content.ManifestNumber.Int64(),
		ThisUpdate: content.ThisUpdate,
		NextUpdate: content.NextUpdate,
		Files:      make(map[string][]byte, len(content.FileList)),
	}
	for _, f := range content.FileList {
		m.Files[f.File] = f.Hash.Bytes
	}
	if len(p7.Certificates) > 0 {
		m.EE = p7.Certificates[0]
	}

	return m, nil
}
