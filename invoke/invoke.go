// Package invoke calls Lambda functions synchronously.
package invoke

import (
	"context"
	"fmt"
	"log/slog"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/oxford-data-processes/aws-utils/aws"
)

// FunctionError is returned when the invocation succeeded but the function
// itself reported an error. Payload holds the error document it returned.
type FunctionError struct {
	Function string
	Kind     string // "Unhandled" or "Handled"
	Payload  []byte
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function %s returned %s error: %s", e.Function, e.Kind, e.Payload)
}

// Result is the outcome of a successful invocation.
type Result struct {
	StatusCode int32
	Payload    []byte
}

// Invoker invokes functions with the RequestResponse invocation type.
type Invoker struct {
	client aws.LambdaClient
	logger *slog.Logger
}

// NewInvoker creates an Invoker.
func NewInvoker(client aws.LambdaClient, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{client: client, logger: logger}
}

// Invoke calls function with payload and waits for its response. A nil
// payload sends no body.
func (i *Invoker) Invoke(ctx context.Context, function string, payload []byte) (Result, error) {
	out, err := i.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   &function,
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to invoke %s: %w", function, err)
	}
	if out.FunctionError != nil {
		return Result{}, &FunctionError{
			Function: function,
			Kind:     sdkaws.ToString(out.FunctionError),
			Payload:  out.Payload,
		}
	}

	i.logger.InfoContext(ctx, "function invoked", "function", function, "status", out.StatusCode, "bytes", len(out.Payload))
	return Result{StatusCode: out.StatusCode, Payload: out.Payload}, nil
}
