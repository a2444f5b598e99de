package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oxford-data-processes/aws-utils/discovery"
	"github.com/oxford-data-processes/aws-utils/invoke"
)

func newInvokeCmd(a *app) *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "invoke FUNCTION",
		Short: "Invoke a Lambda function and wait for its response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			var body []byte
			if payload != "" {
				body = []byte(payload)
			}
			res, err := invoke.NewInvoker(clients.Lambda, a.logger).Invoke(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, string(res.Payload))
			return err
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload sent to the function")

	return cmd
}

func newFindDBCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "find-db IDENTIFIER",
		Short: "Show an RDS instance by identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			inst, err := discovery.NewFinder(clients.RDS, nil).FindDBInstance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(a.stdout, inst)
			}
			port := ""
			if inst.Port != 0 {
				port = strconv.Itoa(int(inst.Port))
			}
			return printTable(a.stdout,
				[]string{"IDENTIFIER", "STATUS", "CLASS", "ENGINE", "ENDPOINT", "PORT"},
				[][]string{{inst.Identifier, inst.Status, inst.Class, inst.Engine, inst.Endpoint, port}},
			)
		},
	}
}

func newFindAPICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "find-api NAME",
		Short: "Print the ID of the first REST API whose name contains NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			api, err := discovery.NewFinder(nil, clients.APIGateway).FindRestAPI(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(a.stdout, api)
			}
			_, err = fmt.Fprintln(a.stdout, api.ID)
			return err
		},
	}
}
