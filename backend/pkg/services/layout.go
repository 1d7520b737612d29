package services

import (
	"strings"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

// RepositoryLayout maps CA objects to repository URIs. Every CA publishes in
// its own directory named after its UUID.
type RepositoryLayout struct {
	BaseURI   string
	NotifyURI string
}

func (l RepositoryLayout) base() string {
	return strings.TrimSuffix(l.BaseURI, "/") + "/"
}

func (l RepositoryLayout) CADirectory(ca *models.CertificateAuthority) string {
	return l.base() + ca.UUID + "/"
}

// ChildCertificateURI is where a parent publishes the certificate of a child
// key. It does not depend on the signing key, so a re-signed certificate
// replaces the previous one.
func (l RepositoryLayout) ChildCertificateURI(parent *models.CertificateAuthority, childSKI string) (string, error) {
	name, err := chelpers.SKIFilename(childSKI, ".cer")
	if err != nil {
		return "", err
	}
	return l.CADirectory(parent) + name, nil
}

func (l RepositoryLayout) TrustAnchorCertificateURI(kp *models.KeyPair) (string, error) {
	name, err := chelpers.SKIFilename(kp.SubjectKeyID, ".cer")
	if err != nil {
		return "", err
	}
	return l.base() + "ta/" + name, nil
}

func (l RepositoryLayout) CRLURI(ca *models.CertificateAuthority, kp *models.KeyPair) string {
	return l.CADirectory(ca) + kp.CRLFilename
}

func (l RepositoryLayout) ManifestURI(ca *models.CertificateAuthority, kp *models.KeyPair) string {
	return l.CADirectory(ca) + kp.ManifestFilename
}

// SIA returns the descriptors a managed CA asks for in the certificate of
// one of its keys.
func (l RepositoryLayout) SIA(ca *models.CertificateAuthority, kp *models.KeyPair) models.SIADescriptors {
	sia := models.SIADescriptors{
		{Method: models.SIACARepository, Location: l.CADirectory(ca)},
		{Method: models.SIAManifest, Location: l.ManifestURI(ca, kp)},
	}
	if l.NotifyURI != "" {
		sia = append(sia, models.SIADescriptor{Method: models.SIANotify, Location: l.NotifyURI})
	}
	return sia
}

// RelativePath strips the base URI, giving the key of an object in a bucket.
func (l RepositoryLayout) RelativePath(uri string) string {
	return strings.TrimPrefix(uri, l.base())
}

type repositories struct {
	cas       storage.CertificateAuthorityRepo
	keyPairs  storage.KeyPairRepo
	incoming  storage.IncomingCertificateRepo
	outgoing  storage.OutgoingCertificateRepo
	published storage.PublishedObjectRepo
	nonHosted storage.NonHostedPublicKeyRepo
	audits    storage.CommandAuditRepo
}

func newRepositories(engine storage.StorageEngine) (*repositories, error) {
	cas, err := engine.GetCAStorage()
	if err != nil {
		return nil, err
	}
	keyPairs, err := engine.GetKeyPairStorage()
	if err != nil {
		return nil, err
	}
	incoming, err := engine.GetIncomingCertificateStorage()
	if err != nil {
		return nil, err
	}
	outgoing, err := engine.GetOutgoingCertificateStorage()
	if err != nil {
		return nil, err
	}
	published, err := engine.GetPublishedObjectStorage()
	if err != nil {
		return nil, err
	}
	nonHosted, err := engine.GetNonHostedPublicKeyStorage()
	if err != nil {
		return nil, err
	}
	audits, err := engine.GetCommandAuditStorage()
	if err != nil {
		return nil, err
	}

	return &repositories{
		cas:       cas,
		keyPairs:  keyPairs,
		incoming:  incoming,
		outgoing:  outgoing,
		published: published,
		nonHosted: nonHosted,
		audits:    audits,
	}, nil
}
