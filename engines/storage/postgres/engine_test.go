package postgres

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/test/dockerunner"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const passwd = "test"

func runPostgresDocker(t *testing.T) config.PostgresPSEConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	cleanup, container, pool, err := dockerunner.RunDocker(dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "14",
		Env:        []string{"POSTGRES_PASSWORD=" + passwd, "POSTGRES_DB=rpki"},
	}, func(hc *docker.HostConfig) {})
	if err != nil {
		t.Skipf("docker not available: %s", err)
	}
	t.Cleanup(func() { _ = cleanup() })

	port, _ := strconv.Atoi(container.GetPort("5432/tcp"))
	conf := config.PostgresPSEConfig{
		Hostname: "localhost",
		Port:     port,
		Username: "postgres",
		Password: passwd,
		Database: "rpki",
	}

	dsn := fmt.Sprintf("host=localhost port=%d user=postgres dbname=rpki password=%s sslmode=disable", port, passwd)
	err = pool.Retry(func() error {
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger.Discard})
		if err != nil {
			return err
		}
		db, err := gdb.DB()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Ping()
	})
	require.NoError(t, err)

	return conf
}

func TestPostgresStorageEngine(t *testing.T) {
	conf := runPostgresDocker(t)
	logger := helpers.SetupLogger(config.Info, "Test", "Postgres")

	Register()
	builder := storage.GetEngineBuilder(config.Postgres)
	require.NotNil(t, builder)

	engine, err := builder(logger, config.PluggableStorageEngine{Provider: config.Postgres, Postgres: conf})
	require.NoError(t, err)
	assert.Equal(t, config.Postgres, engine.GetProvider())

	// migrating twice is a no-op
	_, err = NewStorageEngine(logger, conf)
	require.NoError(t, err)

	cas, err := engine.GetCAStorage()
	require.NoError(t, err)

	ctx := context.Background()
	root, err := cas.Insert(ctx, &models.CertificateAuthority{UUID: uuid.NewString(), Name: "CN=Root", Type: models.CATypeRoot})
	require.NoError(t, err)

	err = engine.Transaction(ctx, func(ctx context.Context) error {
		locked, err := cas.LockByID(ctx, root.ID)
		if err != nil {
			return err
		}
		locked.Version++
		_, err = cas.Update(ctx, locked)
		return err
	})
	require.NoError(t, err)

	exists, stored, err := cas.SelectExistsByName(ctx, "cn=root")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, int64(1), stored.Version)

	kps, err := engine.GetKeyPairStorage()
	require.NoError(t, err)
	kp, err := kps.Insert(ctx, &models.KeyPair{
		CAID:      root.ID,
		Name:      "kp1",
		Algorithm: models.KeyTypeECDSA,
		Status:    models.KeyPairNew,
		PublicKey: []byte{0x01, 0x02},
	})
	require.NoError(t, err)

	_, got, err := kps.SelectExistsByID(ctx, kp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KeyTypeECDSA, got.Algorithm)
	assert.Equal(t, []byte{0x01, 0x02}, got.PublicKey)
}
