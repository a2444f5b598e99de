// Command awsutil exposes the aws-utils components on the command line.
//
// Settings come from the environment (AWS_REGION, ATHENA_DATABASE,
// SQS_QUEUE_URL, ...) and can be overridden per invocation with flags.
package main

import "os"

func main() {
	os.Exit(Execute())
}
