package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/lamassuiot/rpki-core/core/pkg/config"
)

func GetAwsSdkConfig(conf config.AWSSDKConfig) (*aws.Config, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if conf.EndpointURL != "" {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           conf.EndpointURL,
				SigningRegion: conf.Region,
			}, nil
		}

		// EndpointNotFoundError falls back to the default resolution
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(conf.Region),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
	}

	switch conf.AWSAuthenticationMethod {
	case config.Static:
		creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(conf.AccessKeyID, string(conf.SecretAccessKey), string(conf.SessionToken)))
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	case config.AssumeRole:
		stsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), opts...)
		if err != nil {
			return nil, fmt.Errorf("cannot load the AWS configs: %s", err)
		}
		creds := aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(sts.NewFromConfig(stsCfg), conf.RoleARN))
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot load the AWS configs: %s", err)
	}

	return &awsCfg, nil
}
