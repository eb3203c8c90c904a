/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	getDatastore string
	getFilter    string
)

// getCmd represents the get/get-config command.
var getCmd = &cobra.Command{
	Use:   "get",
	Short: "retrieve configuration data from a datastore",
	RunE: func(cmd *cobra.Command, _ []string) error {
		op := "get"
		var source string
		if getDatastore != "" && getDatastore != "running" {
			op = "get-config"
			source = datastoreElement("source", getDatastore)
		}
		filter := ""
		if getFilter != "" {
			filter = fmt.Sprintf(`<filter type="xpath" select="%s"/>`, getFilter)
		}
		data, err := sendRPC(fmt.Sprintf("<%s>%s%s</%s>", op, source, filter, op))
		if err != nil {
			return err
		}
		if data == nil {
			fmt.Println("<empty>")
			return nil
		}
		printElement(data)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVarP(&getDatastore, "datastore", "d", "running", "datastore to read: running, candidate or startup")
	getCmd.Flags().StringVarP(&getFilter, "filter", "f", "", "XPath subtree filter expression")
}
