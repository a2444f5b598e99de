package aws

import (
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gurre/s3streamer"
)

// Clients bundles one SDK client per service, all built from the same
// aws.Config. Fields are typed as the narrow interfaces so callers can swap
// any of them for a fake.
type Clients struct {
	Athena      AthenaClient
	SQS         SQSClient
	S3          S3Client
	SNS         SNSClient
	EventBridge EventBridgeClient
	Glue        GlueClient
	Lambda      LambdaClient
	RDS         RDSClient
	APIGateway  APIGatewayClient
	DynamoDB    DynamoDBClient

	// Streamer reads S3 objects line by line.
	Streamer s3streamer.Streamer
}

// NewClients creates every service client from cfg.
func NewClients(cfg sdkaws.Config) *Clients {
	rawS3 := s3.NewFromConfig(cfg)
	return &Clients{
		Athena:      athena.NewFromConfig(cfg),
		SQS:         sqs.NewFromConfig(cfg),
		S3:          rawS3,
		SNS:         sns.NewFromConfig(cfg),
		EventBridge: eventbridge.NewFromConfig(cfg),
		Glue:        glue.NewFromConfig(cfg),
		Lambda:      lambda.NewFromConfig(cfg),
		RDS:         rds.NewFromConfig(cfg),
		APIGateway:  apigateway.NewFromConfig(cfg),
		DynamoDB:    dynamodb.NewFromConfig(cfg),
		Streamer:    s3streamer.NewS3Streamer(rawS3),
	}
}
