package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	lservices "github.com/lamassuiot/rpki-core/backend/pkg/services"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/sirupsen/logrus"
)

const (
	ReconciliationJobName = "reconciliation"
	KeyRollJobName        = "key-roll"
	ExpiryJobName         = "certificate-expiry"
	PublicationJobName    = "publication"
)

type ReconciliationJob struct {
	logger   *logrus.Entry
	commands services.CommandService
	queries  services.QueryService
}

func NewReconciliationJob(commands services.CommandService, queries services.QueryService, logger *logrus.Entry) *ReconciliationJob {
	return &ReconciliationJob{logger: logger, commands: commands, queries: queries}
}

func (job *ReconciliationJob) Run() {
	runLogged(job.logger, ReconciliationJobName, job.RunOnce)
}

func (job *ReconciliationJob) RunOnce(ctx context.Context) error {
	_, err := lservices.ReconcileAll(ctx, job.logger, job.commands, job.queries)
	return err
}

type KeyRollOptions struct {
	MaxAgeDays     int
	MinStagingTime time.Duration
}

// KeyRollJob moves every managed CA through the key roll: a new key for keys
// older than MaxAgeDays, activation of keys staged long enough and revocation
// of old keys nothing depends on anymore.
type KeyRollJob struct {
	logger   *logrus.Entry
	commands services.CommandService
	queries  services.QueryService
	options  KeyRollOptions
}

func NewKeyRollJob(commands services.CommandService, queries services.QueryService, options KeyRollOptions, logger *logrus.Entry) *KeyRollJob {
	return &KeyRollJob{logger: logger, commands: commands, queries: queries, options: options}
}

func (job *KeyRollJob) Run() {
	runLogged(job.logger, KeyRollJobName, job.RunOnce)
}

func (job *KeyRollJob) RunOnce(ctx context.Context) error {
	return forEachManagedCA(ctx, job.logger, job.queries, func(ca models.CertificateAuthority) []services.Command {
		return []services.Command{
			services.InitiateKeyRollCommand{CA: ca.VersionedID(), MaxAgeDays: job.options.MaxAgeDays},
			services.ActivatePendingKeysCommand{CA: ca.VersionedID(), MinStagingTime: job.options.MinStagingTime},
			services.RevokeOldKeysCommand{CA: ca.VersionedID()},
		}
	}, job.commands)
}

type ExpiryJob struct {
	logger   *logrus.Entry
	commands services.CommandService
	queries  services.QueryService
}

func NewExpiryJob(commands services.CommandService, queries services.QueryService, logger *logrus.Entry) *ExpiryJob {
	return &ExpiryJob{logger: logger, commands: commands, queries: queries}
}

func (job *ExpiryJob) Run() {
	runLogged(job.logger, ExpiryJobName, job.RunOnce)
}

func (job *ExpiryJob) RunOnce(ctx context.Context) error {
	return forEachManagedCA(ctx, job.logger, job.queries, func(ca models.CertificateAuthority) []services.Command {
		return []services.Command{services.ExpireOutgoingResourceCertificatesCommand{CA: ca.VersionedID()}}
	}, job.commands)
}

// PublicationJob refreshes manifests and CRLs, pushes the repository changes
// to the transport and purges withdrawn objects past the retention period.
// Runs are serialized: the scheduler and event driven publication share it.
type PublicationJob struct {
	mu              sync.Mutex
	logger          *logrus.Entry
	commands        services.CommandService
	queries         services.QueryService
	publisher       services.PublicationService
	retentionPeriod time.Duration
}

func NewPublicationJob(commands services.CommandService, queries services.QueryService, publisher services.PublicationService, retentionPeriod time.Duration, logger *logrus.Entry) *PublicationJob {
	return &PublicationJob{
		logger:          logger,
		commands:        commands,
		queries:         queries,
		publisher:       publisher,
		retentionPeriod: retentionPeriod,
	}
}

func (job *PublicationJob) Run() {
	runLogged(job.logger, PublicationJobName, job.RunOnce)
}

func (job *PublicationJob) RunOnce(ctx context.Context) error {
	job.mu.Lock()
	defer job.mu.Unlock()

	lFunc := helpers.ConfigureLogger(ctx, job.logger)

	issueErr := forEachManagedCA(ctx, job.logger, job.queries, func(ca models.CertificateAuthority) []services.Command {
		return []services.Command{services.IssueUpdatedManifestAndCrlCommand{CA: ca.VersionedID()}}
	}, job.commands)

	out, err := job.publisher.PublishObjects(ctx)
	if err != nil {
		lFunc.Errorf("could not publish repository: %s", err)
		return errors.Join(issueErr, err)
	}
	lFunc.Infof("repository published: %d written, %d removed, %d unchanged", len(out.Written), len(out.Removed), len(out.Unchanged))

	if _, err := job.commands.Handle(ctx, services.DeleteWithdrawnPublishedObjectsCommand{RetentionPeriod: job.retentionPeriod}); err != nil {
		lFunc.Errorf("could not delete withdrawn objects: %s", err)
		return errors.Join(issueErr, err)
	}

	return issueErr
}

func runLogged(logger *logrus.Entry, name string, run func(ctx context.Context) error) {
	ctx := helpers.WithSource(helpers.InitContext(), "job/"+name)
	lFunc := helpers.ConfigureLogger(ctx, logger)

	start := time.Now()
	lFunc.Infof("starting job %s", name)
	if err := run(ctx); err != nil {
		lFunc.Warnf("job %s finished with errors: %s", name, err)
	}
	lFunc.Infof("ending job %s. Took %v", name, time.Since(start))
}

// forEachManagedCA runs the commands built for every managed CA in order.
// A CA changed concurrently is left for the next run.
func forEachManagedCA(ctx context.Context, logger *logrus.Entry, queries services.QueryService, build func(ca models.CertificateAuthority) []services.Command, commands services.CommandService) error {
	lFunc := helpers.ConfigureLogger(ctx, logger)

	cas, err := queries.GetCAs(ctx)
	if err != nil {
		lFunc.Errorf("could not list CAs: %s", err)
		return err
	}

	var failures []error
	for _, ca := range cas {
		if !ca.Type.IsManaged() {
			continue
		}

		for _, cmd := range build(ca) {
			res, err := commands.Handle(ctx, cmd)
			if err != nil {
				if errs.KindOf(err) == errs.KindConcurrentModification {
					lFunc.Warnf("CA %s changed while running %s, retrying on next run", ca.Name, cmd.CommandType())
					break
				}
				lFunc.Errorf("%s failed for CA %s: %s", cmd.CommandType(), ca.Name, err)
				failures = append(failures, err)
				break
			}
			if res.HasEffect {
				lFunc.Infof("%s for CA %s: %s", cmd.CommandType(), ca.Name, res.Summary)
			}
		}
	}

	return errors.Join(failures...)
}
