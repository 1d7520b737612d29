package s3

import (
	"context"

	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	fsstorage "github.com/lamassuiot/rpki-core/core/pkg/engines/fs-storage"
	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/blob/s3blob"
)

func Register() {
	fsstorage.RegisterFSStorageEngine(config.AWSS3, NewS3Bucket)
}

func NewS3Bucket(logger *log.Entry, conf config.FSStorageConfig) (*blob.Bucket, error) {
	engineConfig, err := config.FSStorageConfigAdapter[config.S3FSConfig]{}.Marshal(conf)
	if err != nil {
		return nil, err
	}

	awsCfg, err := GetAwsSdkConfig(engineConfig.Config.AWSSDKConfig)
	if err != nil {
		logger.Errorf("could not build AWS SDK config: %s", err)
		return nil, err
	}

	clientV2 := s3v2.NewFromConfig(*awsCfg, func(o *s3v2.Options) {
		if engineConfig.Config.EndpointURL != "" {
			o.UsePathStyle = true
		}
	})

	bucket, err := s3blob.OpenBucketV2(context.Background(), clientV2, engineConfig.Config.BucketName, nil)
	if err != nil {
		logger.Errorf("could not open S3 bucket %s: %s", engineConfig.Config.BucketName, err)
		return nil, err
	}

	return bucket, nil
}
