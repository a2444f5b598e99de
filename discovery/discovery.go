// Package discovery looks up RDS instances and API Gateway REST APIs by name.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/oxford-data-processes/aws-utils/aws"
)

// ErrNotFound is returned when no resource matches.
var ErrNotFound = errors.New("resource not found")

// DBInstance summarises an RDS instance. Endpoint is empty while the
// instance is still being created.
type DBInstance struct {
	Identifier string `json:"identifier"`
	Status     string `json:"status"`
	Class      string `json:"class"`
	Engine     string `json:"engine"`
	Endpoint   string `json:"endpoint,omitempty"`
	Port       int32  `json:"port,omitempty"`
}

// RestAPI identifies an API Gateway REST API.
type RestAPI struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Finder runs lookups against RDS and API Gateway. Either client may be nil
// if the corresponding lookup is never used.
type Finder struct {
	rds        aws.RDSClient
	apiGateway aws.APIGatewayClient
}

// NewFinder creates a Finder.
func NewFinder(rdsClient aws.RDSClient, apiGatewayClient aws.APIGatewayClient) *Finder {
	return &Finder{rds: rdsClient, apiGateway: apiGatewayClient}
}

// FindDBInstance returns the instance whose identifier equals id exactly.
func (f *Finder) FindDBInstance(ctx context.Context, id string) (DBInstance, error) {
	if f.rds == nil {
		return DBInstance{}, fmt.Errorf("no RDS client configured")
	}

	paginator := rds.NewDescribeDBInstancesPaginator(f.rds, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return DBInstance{}, fmt.Errorf("failed to describe DB instances: %w", err)
		}
		for _, inst := range page.DBInstances {
			if sdkaws.ToString(inst.DBInstanceIdentifier) != id {
				continue
			}
			out := DBInstance{
				Identifier: id,
				Status:     sdkaws.ToString(inst.DBInstanceStatus),
				Class:      sdkaws.ToString(inst.DBInstanceClass),
				Engine:     sdkaws.ToString(inst.Engine),
			}
			if inst.Endpoint != nil {
				out.Endpoint = sdkaws.ToString(inst.Endpoint.Address)
				out.Port = sdkaws.ToInt32(inst.Endpoint.Port)
			}
			return out, nil
		}
	}
	return DBInstance{}, fmt.Errorf("DB instance %s: %w", id, ErrNotFound)
}

// FindRestAPI returns the first REST API whose name contains name, ignoring
// case. APIs are considered in the order API Gateway lists them.
func (f *Finder) FindRestAPI(ctx context.Context, name string) (RestAPI, error) {
	if f.apiGateway == nil {
		return RestAPI{}, fmt.Errorf("no API Gateway client configured")
	}

	needle := strings.ToLower(name)
	paginator := apigateway.NewGetRestApisPaginator(f.apiGateway, &apigateway.GetRestApisInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return RestAPI{}, fmt.Errorf("failed to list REST APIs: %w", err)
		}
		for _, api := range page.Items {
			apiName := sdkaws.ToString(api.Name)
			if strings.Contains(strings.ToLower(apiName), needle) {
				return RestAPI{ID: sdkaws.ToString(api.Id), Name: apiName}, nil
			}
		}
	}
	return RestAPI{}, fmt.Errorf("REST API matching %q: %w", name, ErrNotFound)
}
