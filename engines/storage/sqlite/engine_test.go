package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/engines/storage/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *sqlstore.SQLStorageEngine {
	t.Helper()
	logger := helpers.SetupLogger(config.Info, "Test", "SQLite")
	engine, err := NewStorageEngine(logger, config.SQLitePSEConfig{
		DatabasePath: filepath.Join(t.TempDir(), "rpki.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func insertCA(t *testing.T, ctx context.Context, engine storage.StorageEngine, name string, caType models.CAType, parentID *uint) *models.CertificateAuthority {
	t.Helper()
	repo, err := engine.GetCAStorage()
	require.NoError(t, err)

	ca, err := repo.Insert(ctx, &models.CertificateAuthority{
		UUID:     uuid.NewString(),
		Name:     name,
		Type:     caType,
		ParentID: parentID,
	})
	require.NoError(t, err)
	return ca
}

func insertKeyPair(t *testing.T, ctx context.Context, engine storage.StorageEngine, caID uint, name string) *models.KeyPair {
	t.Helper()
	repo, err := engine.GetKeyPairStorage()
	require.NoError(t, err)

	kp, err := repo.Insert(ctx, &models.KeyPair{
		CAID:         caID,
		Name:         name,
		Algorithm:    models.KeyTypeRSA,
		Size:         2048,
		EngineID:     "software",
		KeyID:        name,
		SubjectKeyID: name + "-ski",
		Status:       models.KeyPairNew,
	})
	require.NoError(t, err)
	return kp
}

func TestRegister(t *testing.T) {
	Register()

	builder := storage.GetEngineBuilder(config.SQLite)
	require.NotNil(t, builder)

	engine, err := builder(helpers.SetupLogger(config.Info, "Test", "SQLite"), config.PluggableStorageEngine{
		Provider: config.SQLite,
		SQLite:   config.SQLitePSEConfig{InMemory: true},
	})
	require.NoError(t, err)
	assert.Equal(t, config.SQLite, engine.GetProvider())
}

func TestNewStorageEngineRequiresPath(t *testing.T) {
	_, err := NewStorageEngine(helpers.SetupLogger(config.Info, "Test", "SQLite"), config.SQLitePSEConfig{})
	assert.Error(t, err)
}

func TestCertificateAuthorityRepository(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	repo, err := engine.GetCAStorage()
	require.NoError(t, err)

	root := insertCA(t, ctx, engine, "CN=Root", models.CATypeRoot, nil)
	child := insertCA(t, ctx, engine, "CN=Child", models.CATypeHosted, &root.ID)

	var testcases = []struct {
		name  string
		check func(t *testing.T)
	}{
		{
			name: "OK/SelectByNameIgnoresCase",
			check: func(t *testing.T) {
				exists, ca, err := repo.SelectExistsByName(ctx, "cn=ROOT")
				require.NoError(t, err)
				assert.True(t, exists)
				assert.Equal(t, root.ID, ca.ID)
			},
		},
		{
			name: "OK/SelectChildren",
			check: func(t *testing.T) {
				children, err := repo.SelectChildren(ctx, root.ID)
				require.NoError(t, err)
				require.Len(t, children, 1)
				assert.Equal(t, child.ID, children[0].ID)
			},
		},
		{
			name: "OK/SelectByType",
			check: func(t *testing.T) {
				hosted, err := repo.SelectByType(ctx, models.CATypeHosted)
				require.NoError(t, err)
				require.Len(t, hosted, 1)
				assert.Equal(t, "CN=Child", hosted[0].Name)
			},
		},
		{
			name: "OK/Count",
			check: func(t *testing.T) {
				count, err := repo.Count(ctx)
				require.NoError(t, err)
				assert.Equal(t, 2, count)
			},
		},
		{
			name: "OK/SelectAllExhaustive",
			check: func(t *testing.T) {
				names := []string{}
				err := repo.SelectAll(ctx, storage.StorageListRequest[models.CertificateAuthority]{
					ExhaustiveRun: true,
					PageSize:      1,
					ApplyFunc: func(ca models.CertificateAuthority) {
						names = append(names, ca.Name)
					},
				})
				require.NoError(t, err)
				assert.ElementsMatch(t, []string{"CN=Root", "CN=Child"}, names)
			},
		},
		{
			name: "OK/SelectAllFirstPage",
			check: func(t *testing.T) {
				visited := 0
				err := repo.SelectAll(ctx, storage.StorageListRequest[models.CertificateAuthority]{
					PageSize:  1,
					ApplyFunc: func(models.CertificateAuthority) { visited++ },
				})
				require.NoError(t, err)
				assert.Equal(t, 1, visited)
			},
		},
		{
			name: "Err/LockUnknownCA",
			check: func(t *testing.T) {
				_, err := repo.LockByID(ctx, 9999)
				assert.ErrorIs(t, err, errs.ErrCANotFound)
				assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
			},
		},
		{
			name: "Err/DuplicateName",
			check: func(t *testing.T) {
				_, err := repo.Insert(ctx, &models.CertificateAuthority{
					UUID: uuid.NewString(),
					Name: "cn=root",
					Type: models.CATypeRoot,
				})
				assert.Error(t, err)
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, tc.check)
	}
}

func TestTransaction(t *testing.T) {
	engine := newTestEngine(t)
	repo, err := engine.GetCAStorage()
	require.NoError(t, err)

	var testcases = []struct {
		name       string
		fnErr      error
		expectRows int
	}{
		{name: "OK/Commit", fnErr: nil, expectRows: 1},
		{name: "Err/Rollback", fnErr: errors.New("boom"), expectRows: 0},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			name := "CN=" + uuid.NewString()
			err := engine.Transaction(context.Background(), func(ctx context.Context) error {
				if _, err := repo.Insert(ctx, &models.CertificateAuthority{UUID: uuid.NewString(), Name: name, Type: models.CATypeRoot}); err != nil {
					return err
				}

				// nested transactions join the outer one
				return engine.Transaction(ctx, func(ctx context.Context) error {
					_, err := repo.LockByID(ctx, 1)
					if err != nil && !errors.Is(err, errs.ErrCANotFound) {
						return err
					}
					return tc.fnErr
				})
			})
			if tc.fnErr != nil {
				assert.ErrorIs(t, err, tc.fnErr)
			} else {
				assert.NoError(t, err)
			}

			exists, _, err := repo.SelectExistsByName(context.Background(), name)
			require.NoError(t, err)
			assert.Equal(t, tc.expectRows == 1, exists)
		})
	}
}

func TestWritesMarkUnitOfWork(t *testing.T) {
	engine := newTestEngine(t)
	ctx, uow := helpers.WithUnitOfWork(context.Background())

	ca := insertCA(t, ctx, engine, "CN=Root", models.CATypeRoot, nil)
	assert.Equal(t, 1, uow.Changes())

	repo, err := engine.GetNonHostedPublicKeyStorage()
	require.NoError(t, err)

	// deleting nothing is not a change
	require.NoError(t, repo.DeleteByCA(ctx, ca.ID))
	assert.Equal(t, 1, uow.Changes())

	kps, err := engine.GetKeyPairStorage()
	require.NoError(t, err)
	_, err = kps.SelectByCA(ctx, ca.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, uow.Changes())
	assert.True(t, uow.HasEffect())
}

func TestKeyPairAndIncomingCertificateRepositories(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	ca := insertCA(t, ctx, engine, "CN=Root", models.CATypeRoot, nil)
	kp := insertKeyPair(t, ctx, engine, ca.ID, "kp1")

	kps, err := engine.GetKeyPairStorage()
	require.NoError(t, err)
	incoming, err := engine.GetIncomingCertificateStorage()
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	kp.MarkPending(now)
	_, err = kps.Update(ctx, kp)
	require.NoError(t, err)

	exists, stored, err := kps.SelectExistsByID(ctx, kp.ID)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, models.KeyPairPending, stored.Status)
	assert.Equal(t, models.KeyTypeRSA, stored.Algorithm)
	since, ok := stored.StatusSince(models.KeyPairPending)
	require.True(t, ok)
	assert.True(t, since.Equal(now))

	resources := models.MustParseResourceSet("AS64496, 10.0.0.0/8, 2001:db8::/32")
	_, err = incoming.Insert(ctx, &models.IncomingResourceCertificate{
		KeyPairID:      kp.ID,
		CAID:           ca.ID,
		Resources:      resources,
		NotBefore:      now,
		NotAfter:       now.AddDate(1, 0, 0),
		PublicationURI: "rsync://repo.example/ta/kp1.cer",
	})
	require.NoError(t, err)

	found, cert, err := incoming.SelectByKeyPair(ctx, kp.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, cert.Resources.Equal(resources))

	byCA, err := incoming.SelectByCA(ctx, ca.ID)
	require.NoError(t, err)
	assert.Len(t, byCA, 1)

	require.NoError(t, incoming.DeleteByKeyPair(ctx, kp.ID))
	found, _, err = incoming.SelectByKeyPair(ctx, kp.ID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kps.Delete(ctx, kp.ID))
	assert.Error(t, kps.Delete(ctx, kp.ID))
}

func TestOutgoingCertificateRepository(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	ca := insertCA(t, ctx, engine, "CN=Root", models.CATypeRoot, nil)
	child := insertCA(t, ctx, engine, "CN=Child", models.CATypeHosted, &ca.ID)
	kp := insertKeyPair(t, ctx, engine, ca.ID, "kp1")

	repo, err := engine.GetOutgoingCertificateStorage()
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mk := func(ski string, status models.OutgoingCertificateStatus, notAfter time.Time, requester *uint) *models.OutgoingResourceCertificate {
		cert, err := repo.Insert(ctx, &models.OutgoingResourceCertificate{
			SigningKeyPairID: kp.ID,
			SubjectKeyID:     ski,
			Resources:        models.MustParseResourceSet("10.0.0.0/16"),
			NotBefore:        now.AddDate(0, -1, 0),
			NotAfter:         notAfter,
			SIA:              models.SIADescriptors{{Method: models.SIACARepository, Location: "rsync://repo.example/child/"}},
			Status:           status,
			RequestingCAID:   requester,
		})
		require.NoError(t, err)
		return cert
	}

	old := mk("child-ski", models.OutgoingRevoked, now.AddDate(1, 0, 0), nil)
	latest := mk("child-ski", models.OutgoingCurrent, now.AddDate(1, 0, 0), &child.ID)
	expired := mk("gone-ski", models.OutgoingCurrent, now.AddDate(0, 0, -1), nil)

	var testcases = []struct {
		name  string
		check func(t *testing.T)
	}{
		{
			name: "OK/CurrentBySubjectKey",
			check: func(t *testing.T) {
				certs, err := repo.SelectCurrentBySubjectKey(ctx, "child-ski")
				require.NoError(t, err)
				require.Len(t, certs, 1)
				assert.Equal(t, latest.ID, certs[0].ID)
				assert.True(t, certs[0].SIA.Equal(latest.SIA))
			},
		},
		{
			name: "OK/CurrentByRequestingCA",
			check: func(t *testing.T) {
				certs, err := repo.SelectCurrentByRequestingCA(ctx, child.ID)
				require.NoError(t, err)
				require.Len(t, certs, 1)
				assert.Equal(t, latest.ID, certs[0].ID)
			},
		},
		{
			name: "OK/LatestBySubjectKeyAndSigningKeyPair",
			check: func(t *testing.T) {
				found, cert, err := repo.SelectLatestBySubjectKeyAndSigningKeyPair(ctx, "child-ski", kp.ID)
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, latest.ID, cert.ID)
			},
		},
		{
			name: "OK/CountNonExpired",
			check: func(t *testing.T) {
				count, err := repo.CountNonExpiredBySubjectKey(ctx, "child-ski", now)
				require.NoError(t, err)
				assert.Equal(t, 2, count)
			},
		},
		{
			name: "OK/CurrentExpiredBefore",
			check: func(t *testing.T) {
				certs, err := repo.SelectCurrentExpiredBefore(ctx, now)
				require.NoError(t, err)
				require.Len(t, certs, 1)
				assert.Equal(t, expired.ID, certs[0].ID)
			},
		},
		{
			name: "OK/RevokedBySigningKeyPair",
			check: func(t *testing.T) {
				certs, err := repo.SelectRevokedBySigningKeyPair(ctx, kp.ID, now)
				require.NoError(t, err)
				require.Len(t, certs, 1)
				assert.Equal(t, old.ID, certs[0].ID)
			},
		},
		{
			name: "OK/CurrentBySigningKeyPair",
			check: func(t *testing.T) {
				certs, err := repo.SelectCurrentBySigningKeyPair(ctx, kp.ID)
				require.NoError(t, err)
				assert.Len(t, certs, 2)
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, tc.check)
	}

	require.NoError(t, repo.DeleteBySigningKeyPair(ctx, kp.ID))
	certs, err := repo.SelectCurrentBySigningKeyPair(ctx, kp.ID)
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestPublishedObjectRepository(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	ca := insertCA(t, ctx, engine, "CN=Root", models.CATypeRoot, nil)
	kp := insertKeyPair(t, ctx, engine, ca.ID, "kp1")

	repo, err := engine.GetPublishedObjectStorage()
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	crl, err := repo.Insert(ctx, models.NewPublishedObject(&kp.ID, "rsync://repo.example/root/kp1.crl", []byte("crl"), now.AddDate(0, 0, 1), now))
	require.NoError(t, err)
	mft, err := repo.Insert(ctx, models.NewPublishedObject(&kp.ID, "rsync://repo.example/root/kp1.mft", []byte("mft"), now.AddDate(0, 0, 1), now))
	require.NoError(t, err)

	_, err = crl.Published(now)
	require.NoError(t, err)
	_, err = repo.Update(ctx, crl)
	require.NoError(t, err)

	mft.Withdraw(now.Add(-time.Hour))
	_, err = repo.Update(ctx, mft)
	require.NoError(t, err)

	published, err := repo.SelectByStatus(ctx, models.Published, models.ToBePublished)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, crl.ID, published[0].ID)

	none, err := repo.SelectByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)

	withdrawn, err := repo.SelectWithdrawnBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)
	assert.Equal(t, mft.ID, withdrawn[0].ID)

	byURI, err := repo.SelectByURI(ctx, "rsync://repo.example/root/kp1.crl")
	require.NoError(t, err)
	require.Len(t, byURI, 1)
	assert.Equal(t, models.ContentHash([]byte("crl")), byURI[0].ContentHash)

	require.NoError(t, repo.UnlinkIssuingKeyPair(ctx, kp.ID))
	byKey, err := repo.SelectByIssuingKeyPair(ctx, kp.ID)
	require.NoError(t, err)
	assert.Empty(t, byKey)

	exists, obj, err := repo.SelectExistsByID(ctx, crl.ID)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Nil(t, obj.IssuingKeyPairID)

	require.NoError(t, repo.Delete(ctx, mft.ID))
}

func TestPublishedObjectUpdateStatusIf(t *testing.T) {
	engine := newTestEngine(t)
	ca := insertCA(t, context.Background(), engine, "CN=Root", models.CATypeRoot, nil)
	kp := insertKeyPair(t, context.Background(), engine, ca.ID, "kp1")

	repo, err := engine.GetPublishedObjectStorage()
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	obj, err := repo.Insert(context.Background(), models.NewPublishedObject(&kp.ID, "rsync://repo.example/root/child.cer", []byte("cer"), now.AddDate(1, 0, 0), now))
	require.NoError(t, err)

	var testcases = []struct {
		name          string
		from          models.PublicationStatus
		to            models.PublicationStatus
		expectUpdated bool
		expectStatus  models.PublicationStatus
		expectChanges int
	}{
		{name: "OK/Published", from: models.ToBePublished, to: models.Published, expectUpdated: true, expectStatus: models.Published, expectChanges: 1},
		{name: "OK/StaleSourceStatus", from: models.ToBePublished, to: models.Published, expectUpdated: false, expectStatus: models.Published, expectChanges: 0},
		{name: "OK/Withdrawn", from: models.Published, to: models.Withdrawn, expectUpdated: true, expectStatus: models.Withdrawn, expectChanges: 1},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, uow := helpers.WithUnitOfWork(context.Background())

			updated, err := repo.UpdateStatusIf(ctx, obj.ID, tc.from, tc.to, now.Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, tc.expectUpdated, updated)
			assert.Equal(t, tc.expectChanges, uow.Changes())

			_, stored, err := repo.SelectExistsByID(ctx, obj.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.expectStatus, stored.Status)
		})
	}
}

func TestNonHostedAndAuditRepositories(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	parent := insertCA(t, ctx, engine, "CN=Root", models.CATypeRoot, nil)
	ca := insertCA(t, ctx, engine, "CN=Delegated", models.CATypeNonHosted, &parent.ID)

	keys, err := engine.GetNonHostedPublicKeyStorage()
	require.NoError(t, err)
	audits, err := engine.GetCommandAuditStorage()
	require.NoError(t, err)

	asn := models.MustParseResourceSet("AS64500")
	key, err := keys.Insert(ctx, &models.NonHostedPublicKey{
		CAID:                  ca.ID,
		SubjectKeyID:          "ski-1",
		PublicKey:             []byte{0x30, 0x00},
		LatestRequestType:     models.ProvisioningRequestIssuance,
		RequestedResourceSets: models.RequestedResourceSets{ASN: &asn},
	})
	require.NoError(t, err)

	count, err := keys.CountByCA(ctx, ca.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	found, stored, err := keys.SelectExistsBySubjectKey(ctx, ca.ID, "ski-1")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, stored.RequestedResourceSets.ASN)
	assert.True(t, stored.RequestedResourceSets.ASN.Equal(asn))
	assert.Nil(t, stored.RequestedResourceSets.IPv4)

	key.LatestRequestType = models.ProvisioningRequestRevocation
	_, err = keys.Update(ctx, key)
	require.NoError(t, err)
	all, err := keys.SelectByCA(ctx, ca.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsRevoked())

	for v := int64(1); v <= 3; v++ {
		_, err := audits.Insert(ctx, &models.CommandAudit{
			CAID:         ca.ID,
			CAVersion:    v,
			CommandType:  models.CommandUpdateAllIncomingCertificates,
			CommandGroup: models.CommandGroupUser,
			ExecutedAt:   time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	newer, err := audits.CountNewerThan(ctx, ca.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, newer)

	versions := []int64{}
	err = audits.SelectByCA(ctx, ca.ID, storage.StorageListRequest[models.CommandAudit]{
		ExhaustiveRun: true,
		ApplyFunc:     func(a models.CommandAudit) { versions = append(versions, a.CAVersion) },
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, versions)

	require.NoError(t, audits.DeleteByCA(ctx, ca.ID))
	require.NoError(t, keys.DeleteByCA(ctx, ca.ID))
	count, err = keys.CountByCA(ctx, ca.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
