/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "commit candidate into running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := sendRPC(`<commit/>`); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard-changes",
	Short: "reset candidate to a copy of running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := sendRPC(`<discard-changes/>`); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var validateTarget string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "content-validate a datastore without committing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		body := fmt.Sprintf(`<validate>%s</validate>`, datastoreElement("source", validateTarget))
		if _, err := sendRPC(body); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commitCmd, discardCmd, validateCmd)
	validateCmd.Flags().StringVarP(&validateTarget, "source", "s", "candidate", "datastore to validate")
}
