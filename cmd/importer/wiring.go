package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MyRustyCage/pp-image-importer/config"
	"github.com/MyRustyCage/pp-image-importer/observability"
	"github.com/MyRustyCage/pp-image-importer/repositories"
	"github.com/MyRustyCage/pp-image-importer/services"
)

// app holds the wired pipeline and everything that must be released on exit.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	importer *services.ImportService
	registry *prometheus.Registry

	awsCfg  *aws.Config
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.ValidateHost(); err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	strategies, closeStrategies, err := repositories.NewStrategies(cfg.Fetch.StrategyOrder, cfg.Fetch, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStrategies)

	host, err := a.newHost(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []services.ImportOption{
		services.WithHost(host),
		services.WithStrategies(toFetchStrategies(strategies)...),
		services.WithObserver(observability.MultiObserver{
			observability.NewLoggingObserver(logger),
			observability.NewMetrics(a.registry),
		}),
		services.WithMaxImageBytes(cfg.Fetch.MaxImageBytes),
		services.WithLogger(logger),
	}
	if addr := cfg.RedisAddr(); addr != "" {
		client := repositories.NewRedisClient(addr)
		a.closers = append(a.closers, client.Close)
		locker := repositories.NewRedisLocker(client, cfg.WorkerID, cfg.LockTTL, logger)
		opts = append(opts, services.WithLocker(locker, lockKey(cfg)))
	}

	a.importer = services.NewImportService(opts...)
	return a, nil
}

func (a *app) newHost(ctx context.Context) (services.HostDocumentAPI, error) {
	switch a.cfg.HostBackend {
	case config.HostPenpot:
		p := a.cfg.Penpot
		return repositories.NewPenpotClient(p.BaseURL, p.AccessToken, p.FileID, p.PageID, p.Timeout), nil
	case config.HostS3:
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		shapes := repositories.NewDynamoShapeRepository(dynamodb.NewFromConfig(awsCfg), a.cfg.ShapesTable)
		return repositories.NewS3DocumentHost(repositories.NewS3Repository(awsCfg), shapes, a.cfg.ImagesBucket, a.cfg.DocumentID), nil
	default:
		return nil, fmt.Errorf("unknown host backend %q", a.cfg.HostBackend)
	}
}

func (a *app) requestWorker(ctx context.Context) (*services.RequestWorker, error) {
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	queue := repositories.NewSQSRepository(sqs.NewFromConfig(awsCfg))
	return services.NewRequestWorker(queue, a.importer,
		services.WithQueues(a.cfg.InputQueueURL, a.cfg.EventsQueueURL),
		services.WithWorkerLogger(a.logger),
	), nil
}

// awsConfig loads the SDK config once; the endpoint override and static credentials are only
// applied when set.
func (a *app) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(a.cfg.AWSRegion)}
	if a.cfg.AWSEndpointURL != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           a.cfg.AWSEndpointURL,
				SigningRegion: a.cfg.AWSRegion,
			}, nil
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(customResolver))
	}
	if a.cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.cfg.AWSAccessKeyID, a.cfg.AWSSecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	a.awsCfg = &awsCfg
	return awsCfg, nil
}

func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	if err != nil {
		a.logger.Warn("failed to release resources", zap.Error(err))
	}
	return err
}

func toFetchStrategies(in []repositories.Strategy) []services.FetchStrategy {
	out := make([]services.FetchStrategy, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// lockKey names the document imports are serialized on.
func lockKey(cfg *config.Config) string {
	if cfg.HostBackend == config.HostPenpot {
		return "penpot:" + cfg.Penpot.FileID
	}
	return "s3:" + cfg.DocumentID
}
