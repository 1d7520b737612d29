package services

import (
	"testing"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyRollAge = 31 * 24 * time.Hour

func (e *testEnv) rollKey(t *testing.T, name string, maxAgeDays int) *models.CommandResult {
	t.Helper()
	return e.handle(t, services.InitiateKeyRollCommand{CA: e.ca(t, name).VersionedID(), MaxAgeDays: maxAgeDays})
}

func (e *testEnv) activatePending(t *testing.T, name string, staging time.Duration) *models.CommandResult {
	t.Helper()
	return e.handle(t, services.ActivatePendingKeysCommand{CA: e.ca(t, name).VersionedID(), MinStagingTime: staging})
}

func TestInitiateKeyRoll(t *testing.T) {
	var testcases = []struct {
		name string
		test func(t *testing.T, env *testEnv)
	}{
		{
			name: "OK/CurrentKeyTooYoung",
			test: func(t *testing.T, env *testEnv) {
				res := env.rollKey(t, testRootName, 30)
				assert.False(t, res.HasEffect)
				assert.Equal(t, map[models.KeyPairStatus]int{models.KeyPairCurrent: 1}, env.statuses(t, env.ca(t, testRootName)))
			},
		},
		{
			name: "OK/NewKeyIsCertifiedAndPending",
			test: func(t *testing.T, env *testEnv) {
				env.clock.Advance(keyRollAge)

				res := env.rollKey(t, testRootName, 30)
				assert.True(t, res.HasEffect)
				assert.Contains(t, eventTypes(res), models.EventKeyPairCreated)
				assert.Contains(t, eventTypes(res), models.EventIncomingCertificateUpdated)

				root := env.ca(t, testRootName)
				assert.Equal(t, map[models.KeyPairStatus]int{models.KeyPairCurrent: 1, models.KeyPairPending: 1}, env.statuses(t, root))

				pending := env.keyPairWithStatus(t, root, models.KeyPairPending)
				assert.True(t, rootResources.Equal(env.incoming(t, pending).Resources))
				assert.Len(t, env.issuedTo(t, env.ca(t, testACAName)), 2)
			},
		},
		{
			name: "OK/RollInProgressIsLeftAlone",
			test: func(t *testing.T, env *testEnv) {
				env.clock.Advance(keyRollAge)
				env.rollKey(t, testRootName, 30)

				res := env.rollKey(t, testRootName, 0)
				assert.False(t, res.HasEffect)
				assert.Len(t, env.keyPairs(t, env.ca(t, testRootName)), 2)
			},
		},
		{
			name: "OK/AllResourcesCA",
			test: func(t *testing.T, env *testEnv) {
				env.clock.Advance(keyRollAge)

				res := env.rollKey(t, testACAName, 30)
				assert.True(t, res.HasEffect)

				aca := env.ca(t, testACAName)
				assert.Equal(t, map[models.KeyPairStatus]int{models.KeyPairCurrent: 1, models.KeyPairPending: 1}, env.statuses(t, aca))

				cert := parseCertificate(t, env.incoming(t, env.keyPairWithStatus(t, aca, models.KeyPairPending)).Encoded)
				assert.Equal(t, cert.Subject.String(), cert.Issuer.String())
			},
		},
		{
			name: "Err/NonHostedCA",
			test: func(t *testing.T, env *testEnv) {
				resources := models.MustParseResourceSet("10.2.0.0/16")
				delegated := env.createChild(t, services.CreateNonHostedCACommand{Name: "CN=Delegated", ParentID: env.ca(t, testRootName).ID}, &resources)

				_, err := env.commands.Handle(env.ctx, services.InitiateKeyRollCommand{CA: delegated.VersionedID(), MaxAgeDays: 0})
				assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.setupHierarchy(t)
			tc.test(t, env)
		})
	}
}

func TestKeyRollCycle(t *testing.T) {
	env := newTestEnv(t)
	_, root := env.setupHierarchy(t)

	hostedResources := models.MustParseResourceSet("AS64497, 10.1.0.0/16")
	hosted := env.createChild(t, services.CreateHostedCACommand{Name: "CN=Hosted", ParentID: root.ID}, &hostedResources)
	env.reconcile(t, hosted)

	original := env.keyPairWithStatus(t, root, models.KeyPairCurrent)
	beforeRoll := env.issuedTo(t, root)
	require.Len(t, beforeRoll, 1)

	env.clock.Advance(keyRollAge)
	env.rollKey(t, testRootName, 30)
	root = env.ca(t, testRootName)
	staged := env.keyPairWithStatus(t, root, models.KeyPairPending)

	t.Run("ActivationWaitsForStagingTime", func(t *testing.T) {
		res := env.activatePending(t, testRootName, 24*time.Hour)
		assert.False(t, res.HasEffect)
		assert.Equal(t, 1, env.statuses(t, root)[models.KeyPairPending])
	})

	t.Run("ActivationReplacesCurrentKey", func(t *testing.T) {
		env.clock.Advance(25 * time.Hour)

		res := env.activatePending(t, testRootName, 24*time.Hour)
		assert.True(t, res.HasEffect)
		assert.Contains(t, eventTypes(res), models.EventKeyPairActivated)
		assert.Contains(t, eventTypes(res), models.EventKeyPairDeactivated)

		assert.Equal(t, map[models.KeyPairStatus]int{models.KeyPairCurrent: 1, models.KeyPairOld: 1}, env.statuses(t, root))
		assert.Equal(t, staged.ID, env.keyPairWithStatus(t, root, models.KeyPairCurrent).ID)
		assert.Equal(t, original.ID, env.keyPairWithStatus(t, root, models.KeyPairOld).ID)
	})

	t.Run("OldKeyStillBacksChildCertificate", func(t *testing.T) {
		res := env.handle(t, services.RevokeOldKeysCommand{CA: env.ca(t, testRootName).VersionedID()})
		assert.False(t, res.HasEffect)
		assert.Equal(t, 1, env.statuses(t, root)[models.KeyPairOld])
	})

	t.Run("ChildMovesToNewKey", func(t *testing.T) {
		res := env.reconcile(t, env.ca(t, "CN=Hosted"))
		assert.True(t, res.HasEffect)

		issued := env.issuedTo(t, root)
		require.Len(t, issued, 1)
		assert.Equal(t, staged.ID, issued[0].SigningKeyPairID)
		assertResources(t, "AS64497, 10.1.0.0/16", issued[0].Resources)

		signer := parseCertificate(t, env.incoming(t, staged).Encoded)
		assert.NoError(t, parseCertificate(t, issued[0].Encoded).CheckSignatureFrom(signer))

		assert.Equal(t, beforeRoll[0].PublicationURI, issued[0].PublicationURI)
		assert.NotEqual(t, beforeRoll[0].Encoded, issued[0].Encoded)
		assert.NotEqual(t, beforeRoll[0].SerialNumber, issued[0].SerialNumber)
	})

	t.Run("OldKeyIsRevoked", func(t *testing.T) {
		res := env.handle(t, services.RevokeOldKeysCommand{CA: env.ca(t, testRootName).VersionedID()})
		assert.True(t, res.HasEffect)
		assert.Contains(t, eventTypes(res), models.EventKeyPairRevokeRequested)
		assert.Contains(t, eventTypes(res), models.EventKeyPairRevoked)

		assert.Equal(t, map[models.KeyPairStatus]int{models.KeyPairCurrent: 1, models.KeyPairRevoked: 1}, env.statuses(t, root))

		acaIssued := env.issuedTo(t, env.ca(t, testACAName))
		require.Len(t, acaIssued, 1)
		assert.Equal(t, staged.SubjectKeyID, acaIssued[0].SubjectKeyID)
	})
}
