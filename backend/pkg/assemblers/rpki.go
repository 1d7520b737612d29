package assemblers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lamassuiot/rpki-core/backend/pkg/config"
	cryptobuilder "github.com/lamassuiot/rpki-core/backend/pkg/cryptoengines/builder"
	"github.com/lamassuiot/rpki-core/backend/pkg/eventbus"
	fsbuilder "github.com/lamassuiot/rpki-core/backend/pkg/fs-storage/builder"
	"github.com/lamassuiot/rpki-core/backend/pkg/jobs"
	"github.com/lamassuiot/rpki-core/backend/pkg/middlewares/eventpub"
	"github.com/lamassuiot/rpki-core/backend/pkg/middlewares/metrics"
	lservices "github.com/lamassuiot/rpki-core/backend/pkg/services"
	"github.com/lamassuiot/rpki-core/backend/pkg/services/handlers"
	"github.com/lamassuiot/rpki-core/backend/pkg/storage/builder"
	ceventbus "github.com/lamassuiot/rpki-core/core/pkg/engines/eventbus"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

const serviceID = "rpki-ca"

type RunnableJob interface {
	Run()
	RunOnce(ctx context.Context) error
}

// RPKIService is the assembled CA engine. Commands go through the event
// publishing and metrics middlewares. Jobs holds every maintenance job even
// when its schedule is disabled, so operators can still run it on demand.
type RPKIService struct {
	Commands    services.CommandService
	Queries     services.QueryService
	Publication services.PublicationService
	Jobs        map[string]RunnableJob
	Scheduler   *jobs.JobScheduler
	Registry    *prometheus.Registry

	bucket       *blob.Bucket
	subscription *ceventbus.EventSubscriptionHandler
}

func (s *RPKIService) RunJob(ctx context.Context, name string) error {
	job, ok := s.Jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return job.RunOnce(ctx)
}

func (s *RPKIService) Close() error {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.subscription != nil {
		s.subscription.Stop()
	}
	return s.bucket.Close()
}

// AssembleRPKIServiceWithMetricsServer also serves the metrics registry over
// HTTP and returns the port it listens on, or -1 when metrics are disabled.
func AssembleRPKIServiceWithMetricsServer(conf config.RPKIConfig) (*RPKIService, int, error) {
	svc, err := AssembleRPKIService(conf)
	if err != nil {
		return nil, -1, fmt.Errorf("could not assemble RPKI CA Service. Exiting: %s", err)
	}

	if !conf.Metrics.Enabled {
		return svc, -1, nil
	}

	lHttp := helpers.SetupLogger(conf.Logs.Level, "RPKI CA", "Metrics Server")
	port, err := runMetricsServer(lHttp, conf.Metrics.ListenAddress, svc.Registry)
	if err != nil {
		return nil, -1, fmt.Errorf("could not run metrics server: %s", err)
	}

	return svc, port, nil
}

func AssembleRPKIService(conf config.RPKIConfig) (*RPKIService, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "RPKI CA", "Service")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "RPKI CA", "Storage")
	lCrypto := helpers.SetupLogger(conf.CryptoEngineConfig.LogLevel, "RPKI CA", "CryptoEngine")
	lMessage := helpers.SetupLogger(conf.PublisherEventBus.LogLevel, "RPKI CA", "Event Bus")
	lPublication := helpers.SetupLogger(conf.Logs.Level, "RPKI CA", "Publication")
	lLookup := helpers.SetupLogger(conf.Logs.Level, "RPKI CA", "Resource Lookup")
	lJobs := helpers.SetupLogger(conf.Logs.Level, "RPKI CA", "Jobs")

	engine, err := builder.BuildStorageEngine(lStorage, conf.Storage)
	if err != nil {
		return nil, fmt.Errorf("could not create storage engine: %s", err)
	}

	engines, err := cryptobuilder.BuildCryptoEngines(lCrypto, conf.CryptoEngineConfig.CryptoEngines)
	if err != nil {
		return nil, fmt.Errorf("could not create crypto engines: %s", err)
	}

	keyPairs, err := lservices.NewKeyPairService(lservices.KeyPairServiceBuilder{
		Logger:          lCrypto,
		CryptoEngines:   engines,
		DefaultEngineID: conf.CryptoEngineConfig.DefaultEngine,
		KeyType:         conf.CryptoEngineConfig.KeyType,
		KeySize:         conf.CryptoEngineConfig.KeySize,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create key pair service: %v", err)
	}

	var lookup services.ResourceLookupService
	if conf.ResourceLookup.SnapshotPath != "" {
		lookup = lservices.NewYAMLResourceLookup(lLookup, conf.ResourceLookup.SnapshotPath)
	} else {
		lLookup.Warn("no resource snapshot configured. CAs will not be certified until resources are provided")
		lookup = lservices.NewInMemoryResourceLookup()
	}

	layout := lservices.RepositoryLayout{
		BaseURI:   conf.Publication.BaseURI,
		NotifyURI: conf.Publication.NotifyURI,
	}

	cmdSvc, err := lservices.NewCommandService(lservices.CommandServiceBuilder{
		Logger:           lSvc,
		Storage:          engine,
		KeyPairs:         keyPairs,
		ResourceLookup:   lookup,
		Layout:           layout,
		Limits:           issuanceLimits(conf.Limits),
		ManifestValidity: conf.Publication.ManifestValidity,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create command service: %v", err)
	}

	querySvc, err := lservices.NewQueryService(lservices.QueryServiceBuilder{
		Logger:  lSvc,
		Storage: engine,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create query service: %v", err)
	}

	bucket, err := fsbuilder.BuildFSStorageEngine(lPublication, conf.Publication.Repository)
	if err != nil {
		return nil, fmt.Errorf("could not open repository storage: %s", err)
	}

	pubSvc, err := lservices.NewPublicationService(lservices.PublicationServiceBuilder{
		Logger:    lPublication,
		Storage:   engine,
		Transport: lservices.NewBlobPublicationTransport(lPublication, bucket, layout),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create publication service: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	commandMetrics, err := metrics.NewCommandMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("could not register command metrics: %s", err)
	}

	if conf.Publication.PublishOnEvents && !conf.PublisherEventBus.Enabled {
		return nil, fmt.Errorf("publication on events requires the publisher event bus")
	}

	var svc services.CommandService = cmdSvc
	var subscriber message.Subscriber
	var publisher message.Publisher
	if conf.PublisherEventBus.Enabled {
		log.Infof("Event Bus is enabled")
		publisher, subscriber, err = eventbus.NewEventBusPubSub(conf.PublisherEventBus, serviceID, lMessage)
		if err != nil {
			return nil, fmt.Errorf("could not create Event Bus publisher: %s", err)
		}

		eventPublisher := eventpub.NewEventPublisherWithSourceMiddleware(&eventpub.CloudEventPublisher{
			Publisher: publisher,
			ServiceID: serviceID,
			Logger:    lMessage,
		}, models.RPKISource)
		svc = eventpub.NewCommandEventBusPublisher(eventPublisher, lMessage)(svc)
	}
	svc = metrics.NewCommandInstrumentingMiddleware(commandMetrics)(svc)

	rpki := &RPKIService{
		Commands:    svc,
		Queries:     querySvc,
		Publication: pubSvc,
		Registry:    registry,
		bucket:      bucket,
		Jobs: map[string]RunnableJob{
			jobs.ReconciliationJobName: jobs.NewReconciliationJob(svc, querySvc, lJobs),
			jobs.KeyRollJobName: jobs.NewKeyRollJob(svc, querySvc, jobs.KeyRollOptions{
				MaxAgeDays:     conf.KeyRoll.MaxAgeDays,
				MinStagingTime: conf.KeyRoll.MinStagingTime.Duration(),
			}, lJobs),
			jobs.ExpiryJobName:      jobs.NewExpiryJob(svc, querySvc, lJobs),
			jobs.PublicationJobName: jobs.NewPublicationJob(svc, querySvc, pubSvc, conf.Publication.RetentionPeriod.Duration(), lJobs),
		},
	}

	if conf.Publication.PublishOnEvents {
		topics := make([]string, 0, len(handlers.RepositoryChangeEvents))
		for _, eventType := range handlers.RepositoryChangeEvents {
			topics = append(topics, string(eventType))
		}

		publicationJob := rpki.Jobs[jobs.PublicationJobName]
		eventHandler := handlers.NewPublicationEventHandler(lMessage, publicationJob.RunOnce)
		subHandler, err := ceventbus.NewEventBusMessageHandler("RPKI-CA-Publication", topics, subscriber, publisher, lMessage, eventHandler)
		if err != nil {
			return nil, fmt.Errorf("could not create Event Bus Subscription Handler: %s", err)
		}

		if err := subHandler.RunAsync(); err != nil {
			lMessage.Errorf("could not run Event Bus Subscription Handler: %s", err)
			return nil, err
		}
		rpki.subscription = subHandler
	}

	schedules := map[string]struct {
		enabled   bool
		frequency string
	}{
		jobs.ReconciliationJobName: {conf.Jobs.Reconciliation.Enabled, conf.Jobs.Reconciliation.Frequency},
		jobs.KeyRollJobName:        {conf.Jobs.KeyRoll.Enabled, conf.Jobs.KeyRoll.Frequency},
		jobs.ExpiryJobName:         {conf.Jobs.Expiry.Enabled, conf.Jobs.Expiry.Frequency},
		jobs.PublicationJobName:    {conf.Jobs.Publication.Enabled, conf.Jobs.Publication.Frequency},
	}

	scheduler := jobs.NewJobScheduler(lJobs)
	for name, schedule := range schedules {
		if !schedule.enabled {
			continue
		}
		if err := scheduler.Schedule(name, schedule.frequency, rpki.Jobs[name]); err != nil {
			return nil, fmt.Errorf("could not schedule job %s: %s", name, err)
		}
	}
	if len(scheduler.Jobs()) > 0 {
		log.Infof("scheduling %d maintenance jobs", len(scheduler.Jobs()))
		scheduler.Start()
		rpki.Scheduler = scheduler
	}

	return rpki, nil
}

func issuanceLimits(conf config.Limits) *lservices.IssuanceLimits {
	limits := lservices.DefaultIssuanceLimits()
	if conf.IssuedCertificatesPerSignedKey > 0 {
		limits.IssuedCertificatesPerSignedKey = conf.IssuedCertificatesPerSignedKey
	}
	if conf.NonHostedPublicKeys > 0 {
		limits.NonHostedPublicKeys = conf.NonHostedPublicKeys
	}
	if conf.CertificatesPerNonHostedKey > 0 {
		limits.CertificatesPerNonHostedKey = conf.CertificatesPerNonHostedKey
	}
	return &limits
}

func runMetricsServer(logger *log.Entry, address string, registry *prometheus.Registry) (int, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		logger.Errorf("could not listen on %s: %s", address, err)
		return -1, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	port := listener.Addr().(*net.TCPAddr).Port
	logger.Infof("metrics available at :%d/metrics", port)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server stopped: %s", err)
		}
	}()

	return port, nil
}
