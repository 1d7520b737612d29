package services

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/cryptoengines"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/lamassuiot/rpki-core/engines/crypto/filesystem"
	"github.com/lamassuiot/rpki-core/engines/storage/sqlite"
	"github.com/lamassuiot/rpki-core/engines/storage/sqlstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testACAName  = "CN=All Resources"
	testRootName = "CN=Root"
)

var (
	testStart     = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	rootResources = models.MustParseResourceSet("AS64496-AS64511, 10.0.0.0/8, 2001:db8::/32")
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	ctx      context.Context
	clock    *testClock
	logger   *logrus.Entry
	storage  *sqlstore.SQLStorageEngine
	keys     *KeyPairServiceBackend
	lookup   *InMemoryResourceLookup
	layout   RepositoryLayout
	commands *CommandServiceBackend
	queries  *QueryServiceBackend
}

type testEnvOption func(builder *CommandServiceBuilder)

func withLimits(limits IssuanceLimits) testEnvOption {
	return func(builder *CommandServiceBuilder) {
		builder.Limits = &limits
	}
}

func newTestEnv(t *testing.T, opts ...testEnvOption) *testEnv {
	t.Helper()

	logger := chelpers.SetupLogger(config.Info, "Test", "RPKI Services")
	clock := &testClock{now: testStart}

	engine, err := sqlite.NewStorageEngine(logger, config.SQLitePSEConfig{
		DatabasePath: filepath.Join(t.TempDir(), "rpki.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	fsEngine, err := filesystem.NewFilesystemPEMEngine(logger, config.CryptoEngineConfigAdapter[config.FilesystemCryptoEngineConfig]{
		ID:     "fs",
		Type:   config.FilesystemProvider,
		Config: config.FilesystemCryptoEngineConfig{StorageDirectory: t.TempDir()},
	})
	require.NoError(t, err)

	keys, err := NewKeyPairService(KeyPairServiceBuilder{
		Logger:          logger,
		CryptoEngines:   map[string]cryptoengines.CryptoEngine{"fs": fsEngine},
		DefaultEngineID: "fs",
		KeyType:         models.KeyTypeECDSA,
		KeySize:         256,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	lookup := NewInMemoryResourceLookup()
	layout := RepositoryLayout{BaseURI: "rsync://rpki.example.net/repo/"}

	builder := CommandServiceBuilder{
		Logger:         logger,
		Storage:        engine,
		KeyPairs:       keys,
		ResourceLookup: lookup,
		Layout:         layout,
		Clock:          clock.Now,
	}
	for _, opt := range opts {
		opt(&builder)
	}

	commands, err := NewCommandService(builder)
	require.NoError(t, err)

	queries, err := NewQueryService(QueryServiceBuilder{Logger: logger, Storage: engine})
	require.NoError(t, err)

	return &testEnv{
		ctx:      context.Background(),
		clock:    clock,
		logger:   logger,
		storage:  engine,
		keys:     keys,
		lookup:   lookup,
		layout:   layout,
		commands: commands,
		queries:  queries,
	}
}

func (e *testEnv) handle(t *testing.T, cmd services.Command) *models.CommandResult {
	t.Helper()
	res, err := e.commands.Handle(e.ctx, cmd)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func (e *testEnv) ca(t *testing.T, name string) *models.CertificateAuthority {
	t.Helper()
	ca, err := e.queries.GetCAByName(e.ctx, services.GetCAByNameInput{Name: name})
	require.NoError(t, err)
	return ca
}

func (e *testEnv) keyPairs(t *testing.T, ca *models.CertificateAuthority) []models.KeyPair {
	t.Helper()
	kps, err := e.queries.GetKeyPairs(e.ctx, services.GetKeyPairsInput{CAID: ca.ID})
	require.NoError(t, err)
	return kps
}

func (e *testEnv) statuses(t *testing.T, ca *models.CertificateAuthority) map[models.KeyPairStatus]int {
	t.Helper()
	out := map[models.KeyPairStatus]int{}
	for _, kp := range e.keyPairs(t, ca) {
		out[kp.Status]++
	}
	return out
}

func (e *testEnv) keyPairWithStatus(t *testing.T, ca *models.CertificateAuthority, status models.KeyPairStatus) *models.KeyPair {
	t.Helper()
	for _, kp := range e.keyPairs(t, ca) {
		if kp.Status == status {
			return &kp
		}
	}
	t.Fatalf("CA %s has no %s key pair", ca.Name, status)
	return nil
}

func (e *testEnv) incoming(t *testing.T, kp *models.KeyPair) *models.IncomingResourceCertificate {
	t.Helper()
	exists, cert, err := e.commands.repos.incoming.SelectByKeyPair(e.ctx, kp.ID)
	require.NoError(t, err)
	require.True(t, exists, "key pair %s has no incoming certificate", kp.Name)
	return cert
}

// issuedTo returns the current non-embedded certificates the CA signed.
func (e *testEnv) issuedTo(t *testing.T, ca *models.CertificateAuthority) []models.OutgoingResourceCertificate {
	t.Helper()
	certs, err := e.queries.GetIssuedCertificates(e.ctx, services.GetIssuedCertificatesInput{CAID: ca.ID})
	require.NoError(t, err)

	out := []models.OutgoingResourceCertificate{}
	for _, cert := range certs {
		if !cert.Embedded {
			out = append(out, cert)
		}
	}
	return out
}

func (e *testEnv) createACA(t *testing.T) *models.CertificateAuthority {
	t.Helper()
	res := e.handle(t, services.CreateAllResourcesCACommand{Name: testACAName})
	require.True(t, res.HasEffect)
	return e.ca(t, testACAName)
}

func (e *testEnv) createChild(t *testing.T, cmd services.CreateCACommand, resources *models.ResourceSet) *models.CertificateAuthority {
	t.Helper()
	if resources != nil {
		e.lookup.Set(cmd.CAName(), *resources)
	}
	e.handle(t, cmd)
	return e.ca(t, cmd.CAName())
}

func (e *testEnv) reconcile(t *testing.T, ca *models.CertificateAuthority) *models.CommandResult {
	t.Helper()
	return e.handle(t, services.UpdateAllIncomingResourceCertificatesCommand{CA: ca.VersionedID()})
}

// setupHierarchy creates the All Resources CA and a certified Root CA below
// it.
func (e *testEnv) setupHierarchy(t *testing.T) (*models.CertificateAuthority, *models.CertificateAuthority) {
	t.Helper()
	aca := e.createACA(t)
	root := e.createChild(t, services.CreateRootCACommand{Name: testRootName, ParentID: aca.ID}, &rootResources)
	e.reconcile(t, root)
	return e.ca(t, testACAName), e.ca(t, testRootName)
}

func newChildKey(t *testing.T) ([]byte, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	ski, der, err := chelpers.PublicKeySKI(key.Public())
	require.NoError(t, err)
	return der, ski
}

func eventTypes(res *models.CommandResult) []models.EventType {
	out := []models.EventType{}
	for _, ev := range res.Events {
		out = append(out, ev.Type)
	}
	return out
}

func parseCertificate(t *testing.T, der []byte) *x509.Certificate {
	t.Helper()
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func assertResources(t *testing.T, expected string, actual models.ResourceSet) {
	t.Helper()
	assert.True(t, models.MustParseResourceSet(expected).Equal(actual), "expected %s, got %s", expected, actual)
}
