/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lockTarget string

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "lock a datastore",
	RunE: func(cmd *cobra.Command, _ []string) error {
		body := fmt.Sprintf(`<lock>%s</lock>`, datastoreElement("target", lockTarget))
		if _, err := sendRPC(body); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "unlock a datastore",
	RunE: func(cmd *cobra.Command, _ []string) error {
		body := fmt.Sprintf(`<unlock>%s</unlock>`, datastoreElement("target", lockTarget))
		if _, err := sendRPC(body); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lockCmd, unlockCmd)
	lockCmd.Flags().StringVarP(&lockTarget, "target", "t", "candidate", "datastore to lock")
	unlockCmd.Flags().StringVarP(&lockTarget, "target", "t", "candidate", "datastore to unlock")
}
