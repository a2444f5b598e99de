// Package catalog registers Hive-style partitions of parquet tables in the
// Glue Data Catalog.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/oxford-data-processes/aws-utils/aws"
)

const (
	parquetInputFormat  = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat"
	parquetOutputFormat = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetOutputFormat"
	parquetSerDe        = "org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe"
)

// PartitionKey is one key=value component of a partition path. Order is
// significant and must match the table's partition keys.
type PartitionKey struct {
	Name  string
	Value string
}

// ParsePartition parses "k1=v1,k2=v2" into ordered keys.
func ParsePartition(s string) ([]PartitionKey, error) {
	var keys []PartitionKey
	for _, part := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("invalid partition component %q (want key=value)", part)
		}
		keys = append(keys, PartitionKey{Name: name, Value: value})
	}
	return keys, nil
}

// PartitionLocation returns s3://bucket/table/k1=v1/k2=v2/.
func PartitionLocation(bucket, table string, keys []PartitionKey) string {
	var b strings.Builder
	b.WriteString("s3://" + bucket + "/" + table + "/")
	for _, k := range keys {
		b.WriteString(k.Name + "=" + k.Value + "/")
	}
	return b.String()
}

func values(keys []PartitionKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Value
	}
	return out
}

// Catalog manages partitions in one Glue catalog.
type Catalog struct {
	client    aws.GlueClient
	catalogID string
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Catalog. An empty catalogID targets the caller's account.
func New(client aws.GlueClient, catalogID string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		client:    client,
		catalogID: catalogID,
		now:       time.Now,
		logger:    logger,
	}
}

func (c *Catalog) id() *string {
	if c.catalogID == "" {
		return nil
	}
	return &c.catalogID
}

// PartitionExists reports whether a partition with the same values is
// already registered.
func (c *Catalog) PartitionExists(ctx context.Context, database, table string, keys []PartitionKey) (bool, error) {
	want := values(keys)
	paginator := glue.NewGetPartitionsPaginator(c.client, &glue.GetPartitionsInput{
		CatalogId:    c.id(),
		DatabaseName: &database,
		TableName:    &table,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list partitions of %s.%s: %w", database, table, err)
		}
		for _, p := range page.Partitions {
			if slices.Equal(p.Values, want) {
				return true, nil
			}
		}
	}
	return false, nil
}

// AddPartition registers a parquet partition whose SerDe paths are the
// table's column names.
func (c *Catalog) AddPartition(ctx context.Context, database, table, bucket string, keys []PartitionKey) error {
	if len(keys) == 0 {
		return fmt.Errorf("at least one partition key is required")
	}

	tbl, err := c.client.GetTable(ctx, &glue.GetTableInput{
		CatalogId:    c.id(),
		DatabaseName: &database,
		Name:         &table,
	})
	if err != nil {
		return fmt.Errorf("failed to get table %s.%s: %w", database, table, err)
	}
	if tbl.Table == nil || tbl.Table.StorageDescriptor == nil {
		return fmt.Errorf("table %s.%s has no storage descriptor", database, table)
	}

	var paths []string
	for _, col := range tbl.Table.StorageDescriptor.Columns {
		paths = append(paths, sdkaws.ToString(col.Name))
	}

	location := PartitionLocation(bucket, table, keys)
	now := c.now().UTC()
	_, err = c.client.CreatePartition(ctx, &glue.CreatePartitionInput{
		CatalogId:    c.id(),
		DatabaseName: &database,
		TableName:    &table,
		PartitionInput: &types.PartitionInput{
			Values:         values(keys),
			LastAccessTime: &now,
			Parameters:     map[string]string{},
			StorageDescriptor: &types.StorageDescriptor{
				Columns:         []types.Column{},
				Location:        &location,
				InputFormat:     sdkaws.String(parquetInputFormat),
				OutputFormat:    sdkaws.String(parquetOutputFormat),
				Compressed:      true,
				NumberOfBuckets: -1,
				SerdeInfo: &types.SerDeInfo{
					SerializationLibrary: sdkaws.String(parquetSerDe),
					Parameters:           map[string]string{"paths": strings.Join(paths, ",")},
				},
				BucketColumns: []string{},
				SortColumns:   []types.Order{},
				Parameters: map[string]string{
					"classification":  "parquet",
					"compressionType": "SNAPPY",
					"typeOfData":      "file",
				},
				StoredAsSubDirectories: false,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create partition %s in %s.%s: %w", location, database, table, err)
	}

	c.logger.InfoContext(ctx, "partition added", "database", database, "table", table, "location", location)
	return nil
}

// EnsurePartition adds the partition unless it already exists. It reports
// whether a partition was created.
func (c *Catalog) EnsurePartition(ctx context.Context, database, table, bucket string, keys []PartitionKey) (bool, error) {
	exists, err := c.PartitionExists(ctx, database, table, keys)
	if err != nil {
		return false, err
	}
	if exists {
		c.logger.DebugContext(ctx, "partition already registered", "database", database, "table", table, "values", values(keys))
		return false, nil
	}
	if err := c.AddPartition(ctx, database, table, bucket, keys); err != nil {
		return false, err
	}
	return true, nil
}
