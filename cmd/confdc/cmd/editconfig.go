/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	editTarget string
	editFile   string
)

// editConfigCmd represents the edit-config command.
var editConfigCmd = &cobra.Command{
	Use:   "edit-config",
	Short: "merge a configuration fragment into a datastore",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var content []byte
		var err error
		if editFile == "-" || editFile == "" {
			content, err = io.ReadAll(os.Stdin)
		} else {
			content, err = os.ReadFile(editFile)
		}
		if err != nil {
			return fmt.Errorf("reading config fragment: %w", err)
		}
		body := fmt.Sprintf(`<edit-config>%s<config>%s</config></edit-config>`,
			datastoreElement("target", editTarget), string(content))
		if _, err := sendRPC(body); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editConfigCmd)
	editConfigCmd.Flags().StringVarP(&editTarget, "target", "t", "candidate", "target datastore: candidate or running")
	editConfigCmd.Flags().StringVarP(&editFile, "file", "f", "-", "path to an XML configuration fragment, or '-' for stdin")
}
