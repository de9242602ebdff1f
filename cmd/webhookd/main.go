// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

// Package main is the entry point to the webhook delivery server.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/docuflow/webhook-delivery/model"
)

var instanceID string

var rootCmd = &cobra.Command{
	Use:   "webhookd",
	Short: "Webhookd delivers document-change webhooks to configured endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverCmd.RunE(cmd, args)
	},
	// SilenceErrors allows us to explicitly log the error returned from rootCmd below.
	SilenceErrors: true,
}

func init() {
	instanceID = model.NewID()

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
