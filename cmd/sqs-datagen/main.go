// Package main provides a data generator for SQS queues.
// It sends messages whose bodies carry YYYY-MM-DDTHH:MM:SS timestamps,
// optionally shuffled and mixed with untimestamped messages, so drain
// ordering can be verified against a real queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SendMessageBatch accepts at most ten entries.
const maxBatchEntries = 10

// MessageSender defines operations needed for data generation.
// The AWS SQS client satisfies this interface.
type MessageSender interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// Compile-time check that sqs.Client satisfies MessageSender
var _ MessageSender = (*sqs.Client)(nil)

// Config holds the command-line configuration for the data generator.
type Config struct {
	QueueURL string
	NumItems int
	Start    time.Time
	Step     time.Duration
	Shuffle  bool
	Untimed  int // Messages sent with no timestamp in the body
	Seed     int64
	SKUs     []string
}

// generateBodies returns NumItems timestamped bodies in ascending time order,
// followed by Untimed bodies with no timestamp, shuffled when requested.
func generateBodies(r *rand.Rand, cfg Config) []string {
	skus := cfg.SKUs
	if len(skus) == 0 {
		skus = []string{"A100", "B200", "C300", "D400"}
	}

	bodies := make([]string, 0, cfg.NumItems+cfg.Untimed)
	for i := 0; i < cfg.NumItems; i++ {
		ts := cfg.Start.Add(time.Duration(i) * cfg.Step).Format("2006-01-02T15:04:05")
		sku := skus[r.Intn(len(skus))]
		bodies = append(bodies, fmt.Sprintf(`{"sku":%q,"qty":%d,"updated":%q}`, sku, r.Intn(500), ts))
	}
	for i := 0; i < cfg.Untimed; i++ {
		bodies = append(bodies, fmt.Sprintf(`{"sku":%q,"note":"no timestamp"}`, skus[r.Intn(len(skus))]))
	}

	if cfg.Shuffle {
		r.Shuffle(len(bodies), func(i, j int) { bodies[i], bodies[j] = bodies[j], bodies[i] })
	}
	return bodies
}

// sendBodies sends bodies in batches of ten and returns how many were
// accepted. Failed entries are logged and skipped.
func sendBodies(ctx context.Context, client MessageSender, queueURL string, bodies []string) (int, error) {
	sent := 0
	for start := 0; start < len(bodies); start += maxBatchEntries {
		end := min(start+maxBatchEntries, len(bodies))

		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i, body := range bodies[start:end] {
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(start + i)),
				MessageBody: aws.String(body),
			})
		}

		out, err := client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(queueURL),
			Entries:  entries,
		})
		if err != nil {
			return sent, fmt.Errorf("failed to send batch starting at %d: %w", start, err)
		}
		for _, f := range out.Failed {
			log.Printf("Failed to send message %s: %s", aws.ToString(f.Id), aws.ToString(f.Message))
		}
		sent += len(out.Successful)
		fmt.Printf("Sent %d messages...\n", sent)
	}
	return sent, nil
}

func main() {
	var cfg Config
	var start string

	flag.StringVar(&cfg.QueueURL, "queue-url", "", "Queue URL (required)")
	flag.IntVar(&cfg.NumItems, "items", 50, "Number of timestamped messages")
	flag.StringVar(&start, "start", "", "First timestamp, YYYY-MM-DDTHH:MM:SS (default: now)")
	flag.DurationVar(&cfg.Step, "step", time.Second, "Time between consecutive timestamps")
	flag.BoolVar(&cfg.Shuffle, "shuffle", true, "Send messages out of timestamp order")
	flag.IntVar(&cfg.Untimed, "untimed", 0, "Additional messages without a timestamp")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed (0 = time-based)")
	flag.Parse()

	if cfg.QueueURL == "" {
		log.Fatal("-queue-url is required")
	}

	cfg.Start = time.Now().UTC().Truncate(time.Second)
	if start != "" {
		t, err := time.Parse("2006-01-02T15:04:05", start)
		if err != nil {
			log.Fatalf("Invalid -start: %v", err)
		}
		cfg.Start = t
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	fmt.Printf("Using seed: %d\n", cfg.Seed)

	ctx := context.Background()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("Unable to load SDK config: %v", err)
	}
	client := sqs.NewFromConfig(awsCfg)

	bodies := generateBodies(rand.New(rand.NewSource(cfg.Seed)), cfg)
	sent, err := sendBodies(ctx, client, cfg.QueueURL, bodies)
	if err != nil {
		log.Fatalf("Send failed: %v", err)
	}
	fmt.Printf("Messages sent: %d of %d\n", sent, len(bodies))
}
