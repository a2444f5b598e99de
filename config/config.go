// Package config holds the explicit configuration passed to every component.
// Library packages never read the process environment; FromEnv is the single
// place where environment variables are turned into a Config, and it is only
// called at the command-line boundary.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config groups the per-component settings.
type Config struct {
	AWS     AWS     `envPrefix:"AWS_"`
	Athena  Athena  `envPrefix:"ATHENA_"`
	Queue   Queue   `envPrefix:"SQS_"`
	Notify  Notify  `envPrefix:"SNS_"`
	Archive Archive `envPrefix:"ARCHIVE_"`
}

// AWS holds region and credential settings used to build an aws.Config.
// When AccessKeyID is empty the SDK default credential chain is used.
type AWS struct {
	Region          string `env:"REGION"`
	Profile         string `env:"PROFILE"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	SessionToken    string `env:"SESSION_TOKEN"`
	Endpoint        string `env:"ENDPOINT_URL"` // Custom endpoint, e.g. LocalStack
	AccountID       string `env:"ACCOUNT_ID"`   // Used for Glue catalog IDs and SNS topic ARNs
}

// Athena holds the fixed execution context of every submitted query.
type Athena struct {
	Database     string        `env:"DATABASE"`
	Workgroup    string        `env:"WORKGROUP" envDefault:"primary"`
	OutputBucket string        `env:"OUTPUT_BUCKET"`
	OutputPrefix string        `env:"OUTPUT_PREFIX" envDefault:"athena-results/"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
	MaxWait      time.Duration `env:"MAX_WAIT" envDefault:"0s"` // Zero polls until a terminal state
}

// Queue holds the receive parameters used when draining a queue.
type Queue struct {
	URL              string `env:"QUEUE_URL"`
	MaxMessages      int32  `env:"MAX_MESSAGES" envDefault:"10"`
	WaitTimeSeconds  int32  `env:"WAIT_TIME_SECONDS" envDefault:"5"`
	DeleteAfterDrain bool   `env:"DELETE_AFTER_DRAIN"`
	RequireMessages  bool   `env:"REQUIRE_MESSAGES"`
}

// Notify holds the SNS topic that notifications are published to.
type Notify struct {
	TopicARN  string `env:"TOPIC_ARN"`
	TopicName string `env:"TOPIC_NAME"`
	Subject   string `env:"SUBJECT" envDefault:"Stock Feed Processed"`
}

// Archive holds the DynamoDB table drained messages are archived to.
type Archive struct {
	TableName string `env:"TABLE_NAME"`
	BatchSize int    `env:"BATCH_SIZE" envDefault:"25"`
}

// Default returns a Config populated with the same defaults FromEnv applies.
func Default() *Config {
	return &Config{
		Athena: Athena{
			Workgroup:    "primary",
			OutputPrefix: "athena-results/",
			PollInterval: 500 * time.Millisecond,
		},
		Queue: Queue{
			MaxMessages:     10,
			WaitTimeSeconds: 5,
		},
		Notify: Notify{
			Subject: "Stock Feed Processed",
		},
		Archive: Archive{
			BatchSize: 25,
		},
	}
}

// FromEnv parses the process environment into a Config.
func FromEnv() (*Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks region and credential settings. A profile and static keys
// cannot both be set.
func (a *AWS) Validate() error {
	if a.Region == "" {
		return fmt.Errorf("region is required")
	}
	if a.AccessKeyID != "" && a.SecretAccessKey == "" {
		return fmt.Errorf("secret access key is required when an access key ID is set")
	}
	if a.AccessKeyID == "" && a.SecretAccessKey != "" {
		return fmt.Errorf("access key ID is required when a secret access key is set")
	}
	if a.Profile != "" && a.AccessKeyID != "" {
		return fmt.Errorf("profile and static access keys are mutually exclusive")
	}
	return nil
}

// Validate checks that the query execution context is complete.
func (a *Athena) Validate() error {
	if a.Database == "" {
		return fmt.Errorf("athena database is required")
	}
	if a.Workgroup == "" {
		return fmt.Errorf("athena workgroup is required")
	}
	if a.OutputBucket == "" {
		return fmt.Errorf("athena output bucket is required")
	}
	if strings.Contains(a.OutputBucket, "/") {
		return fmt.Errorf("athena output bucket must be a bare bucket name")
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if a.MaxWait < 0 {
		return fmt.Errorf("max wait must not be negative")
	}
	return nil
}

// OutputLocation renders the S3 location Athena writes results to.
func (a *Athena) OutputLocation() string {
	prefix := strings.TrimPrefix(a.OutputPrefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return fmt.Sprintf("s3://%s/%s", a.OutputBucket, prefix)
}

// Validate checks the receive parameters against the SQS limits.
func (q *Queue) Validate() error {
	if q.MaxMessages < 1 || q.MaxMessages > 10 {
		return fmt.Errorf("max messages must be between 1 and 10")
	}
	if q.WaitTimeSeconds < 0 || q.WaitTimeSeconds > 20 {
		return fmt.Errorf("wait time must be between 0 and 20 seconds")
	}
	if q.URL != "" && !strings.HasPrefix(q.URL, "https://") && !strings.HasPrefix(q.URL, "http://") {
		return fmt.Errorf("queue URL must be an http(s) URL")
	}
	return nil
}

// ResolveTopicARN returns TopicARN, or builds one from TopicName, region and
// account when no ARN is configured.
func (n *Notify) ResolveTopicARN(region, accountID string) (string, error) {
	if n.TopicARN != "" {
		if !strings.HasPrefix(n.TopicARN, "arn:") {
			return "", fmt.Errorf("topic ARN must start with arn:")
		}
		return n.TopicARN, nil
	}
	if n.TopicName == "" {
		return "", fmt.Errorf("topic ARN or topic name is required")
	}
	if region == "" || accountID == "" {
		return "", fmt.Errorf("region and account ID are required to build a topic ARN")
	}
	return fmt.Sprintf("arn:aws:sns:%s:%s:%s", region, accountID, n.TopicName), nil
}

// Validate checks the archive table settings. BatchWriteItem accepts at most
// 25 requests.
func (a *Archive) Validate() error {
	if a.TableName == "" {
		return fmt.Errorf("archive table name is required")
	}
	if a.BatchSize < 1 || a.BatchSize > 25 {
		return fmt.Errorf("batch size must be between 1 and 25")
	}
	return nil
}
