/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	copyTarget string
	copySource string
)

var copyConfigCmd = &cobra.Command{
	Use:   "copy-config",
	Short: "replace target's content with a copy of source's",
	RunE: func(cmd *cobra.Command, _ []string) error {
		body := fmt.Sprintf(`<copy-config>%s%s</copy-config>`,
			datastoreElement("target", copyTarget), datastoreElement("source", copySource))
		if _, err := sendRPC(body); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var deleteTarget string

var deleteConfigCmd = &cobra.Command{
	Use:   "delete-config",
	Short: "delete a datastore's content (running cannot be deleted)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		body := fmt.Sprintf(`<delete-config>%s</delete-config>`, datastoreElement("target", deleteTarget))
		if _, err := sendRPC(body); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(copyConfigCmd, deleteConfigCmd)
	copyConfigCmd.Flags().StringVarP(&copyTarget, "target", "t", "startup", "datastore to overwrite")
	copyConfigCmd.Flags().StringVarP(&copySource, "source", "s", "running", "datastore to copy from")
	deleteConfigCmd.Flags().StringVarP(&deleteTarget, "target", "t", "startup", "datastore to delete")
}
