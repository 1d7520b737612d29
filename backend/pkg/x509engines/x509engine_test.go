package x509engines

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/lamassuiot/rpki-core/backend/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	repoURI = "rsync://rpki.example.net/repo/"
)

func newTestEngine(t *testing.T) ResourceCertificateEngine {
	return NewResourceCertificateEngine(logrus.StandardLogger().WithField("test", t.Name()))
}

func testValidity() models.ValidityPeriod {
	now := time.Now().UTC().Truncate(time.Second)
	return models.ValidityPeriod{NotBefore: now.Add(-time.Hour), NotAfter: now.Add(24 * time.Hour)}
}

func caSIA(dir string) models.SIADescriptors {
	return models.SIADescriptors{
		{Method: models.SIACARepository, Location: dir},
		{Method: models.SIAManifest, Location: dir + "key.mft"},
	}
}

func newTrustAnchor(t *testing.T, engine ResourceCertificateEngine) (*x509.Certificate, crypto.Signer) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	ta, err := engine.CreateTrustAnchorCertificate(context.Background(), key, ResourceCertificateRequest{
		SerialNumber: big.NewInt(1),
		Resources:    models.AllResources(),
		Validity:     testValidity(),
		SIA:          caSIA(repoURI + "ta/"),
	})
	require.NoError(t, err)

	return ta, key
}

func TestCreateTrustAnchorCertificate(t *testing.T) {
	engine := newTestEngine(t)
	ta, _ := newTrustAnchor(t, engine)

	assert.True(t, ta.IsCA)
	assert.Empty(t, ta.CRLDistributionPoints)
	assert.Empty(t, ta.IssuingCertificateURL)
	require.NoError(t, ta.CheckSignatureFrom(ta))

	resources, inherit, err := ParseResourceExtensions(ta.Extensions)
	require.NoError(t, err)
	assert.False(t, inherit)
	assert.True(t, resources.Equal(models.AllResources()), "got %s", resources)
}

func TestCreateResourceCertificate(t *testing.T) {
	engine := newTestEngine(t)
	ta, taKey := newTrustAnchor(t, engine)

	childKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	testcases := []struct {
		name      string
		resources string
	}{
		{name: "SinglePrefix", resources: "10.10.0.0/16"},
		{name: "MixedFamilies", resources: "AS64496-AS64511, AS65000, 10.0.0.0/8, 192.168.0.0-192.168.0.200, 2001:db8::/32"},
		{name: "OnlyASNs", resources: "AS65001"},
		{name: "IPv6Range", resources: "2001:db8::1-2001:db8::ff"},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			resources := models.MustParseResourceSet(tc.resources)
			sia := caSIA(repoURI + "child/")

			cert, err := engine.CreateResourceCertificate(context.Background(), ResourceCertificateRequest{
				SerialNumber:         big.NewInt(42),
				SubjectPublicKey:     childKey.Public(),
				Resources:            resources,
				Validity:             testValidity(),
				SIA:                  sia,
				CRLURI:               repoURI + "ta/key.crl",
				IssuerCertificateURI: repoURI + "ta.cer",
			}, ta, taKey)
			require.NoError(t, err)

			require.NoError(t, cert.CheckSignatureFrom(ta))
			assert.True(t, cert.IsCA)
			assert.Equal(t, []string{repoURI + "ta/key.crl"}, cert.CRLDistributionPoints)
			assert.Equal(t, []string{repoURI + "ta.cer"}, cert.IssuingCertificateURL)

			got, inherit, err := ParseResourceExtensions(cert.Extensions)
			require.NoError(t, err)
			assert.False(t, inherit)
			assert.True(t, got.Equal(resources), "expected %s, got %s", resources, got)

			gotSIA, err := ParseSIA(cert.Extensions)
			require.NoError(t, err)
			assert.True(t, gotSIA.Equal(sia))
		})
	}
}

func TestCreateResourceCertificateWithoutResources(t *testing.T) {
	engine := newTestEngine(t)
	ta, taKey := newTrustAnchor(t, engine)

	childKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = engine.CreateResourceCertificate(context.Background(), ResourceCertificateRequest{
		SerialNumber:     big.NewInt(2),
		SubjectPublicKey: childKey.Public(),
		Validity:         testValidity(),
		SIA:              caSIA(repoURI + "child/"),
	}, ta, taKey)
	assert.Error(t, err)
}

func TestCreateCRL(t *testing.T) {
	engine := newTestEngine(t)
	ta, taKey := newTrustAnchor(t, engine)

	now := time.Now().UTC().Truncate(time.Second)
	der, err := engine.CreateCRL(context.Background(), CRLInput{
		Number:     7,
		ThisUpdate: now,
		NextUpdate: now.Add(24 * time.Hour),
		Revoked: []RevokedCertificate{
			{SerialNumber: big.NewInt(100), RevocationTime: now.Add(-time.Minute)},
			{SerialNumber: big.NewInt(101), RevocationTime: now.Add(-time.Hour)},
		},
	}, ta, taKey)
	require.NoError(t, err)

	crl, err := x509.ParseRevocationList(der)
	require.NoError(t, err)
	require.NoError(t, crl.CheckSignatureFrom(ta))
	assert.Equal(t, int64(7), crl.Number.Int64())
	assert.Len(t, crl.RevokedCertificateEntries, 2)
	assert.Equal(t, now.Add(24*time.Hour), crl.NextUpdate.UTC())
}

func TestCreateManifest(t *testing.T) {
	engine := newTestEngine(t)
	ta, taKey := newTrustAnchor(t, engine)

	now := time.Now().UTC().Truncate(time.Second)
	entries := []ManifestEntry{
		{FileName: "child.cer", Content: []byte("certificate bytes")},
		{FileName: "key.crl", Content: []byte("crl bytes")},
	}

	der, ee, err := engine.CreateManifest(context.Background(), ManifestInput{
		Number:               3,
		ThisUpdate:           now,
		NextUpdate:           now.Add(24 * time.Hour),
		ManifestURI:          repoURI + "ta/key.mft",
		CRLURI:               repoURI + "ta/key.crl",
		IssuerCertificateURI: repoURI + "ta.cer",
		EESerialNumber:       big.NewInt(9),
		Entries:              entries,
	}, ta, taKey)
	require.NoError(t, err)

	contentType, err := helpers.SignedObjectContentType(der)
	require.NoError(t, err)
	assert.Equal(t, "1.2.840.113549.1.9.16.1.26", contentType.String())

	mft, err := ParseManifest(der)
	require.NoError(t, err)
	assert.Equal(t, int64(3), mft.Number)
	assert.Equal(t, now, mft.ThisUpdate.UTC())
	require.Len(t, mft.Files, 2)
	for _, entry := range entries {
		sum := sha256.Sum256(entry.Content)
		assert.Equal(t, sum[:], mft.Files[entry.FileName])
	}

	require.NotNil(t, mft.EE)
	assert.Equal(t, ee.Raw, mft.EE.Raw)
	require.NoError(t, mft.EE.CheckSignatureFrom(ta))
	assert.False(t, mft.EE.IsCA)
	assert.True(t, mft.EE.NotBefore.Before(now))

	_, inherit, err := ParseResourceExtensions(mft.EE.Extensions)
	require.NoError(t, err)
	assert.True(t, inherit)

	sia, err := ParseSIA(mft.EE.Extensions)
	require.NoError(t, err)
	assert.Equal(t, repoURI+"ta/key.mft", sia.Location(models.SIASignedObject))
}

func TestParseManifestRejectsGarbage(t *testing.T) {
	_, err := ParseManifest([]byte("not a manifest"))
	assert.Error(t, err)
}

func TestParseManifestRejectsOtherContentTypes(t *testing.T) {
	engine := newTestEngine(t)
	ta, taKey := newTrustAnchor(t, engine)

	signed, err := helpers.CreateSignedObject([]byte("payload"), asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}, taKey, ta)
	require.NoError(t, err)

	_, err = ParseManifest(signed)
	assert.ErrorContains(t, err, "is not a manifest")
}
