/*
Copyright 2025 Tandem Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	backups "github.com/tandemhq/tandem/internal/pg-backups"
)

func backupCommands(t *tandemInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "start tandem database backup",
	}

	cmd.AddCommand(backupToCommands(t))
	cmd.AddCommand(backupToS3Commands(t))

	return cmd
}

func backupToCommands(t *tandemInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "drive",
		Run: func(cmd *cobra.Command, args []string) {
			bm := backups.NewBackupManager(t.cnf)
			filePath, err := bm.BackupToDisk(cmd.Context())
			if err != nil {
				logrus.Error(err)
				return
			}
			logrus.Infof("Backup written to %s", filePath)
		},
	}

	return cmd
}

func backupToS3Commands(t *tandemInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "s3",
		Run: func(cmd *cobra.Command, args []string) {
			bm := backups.NewBackupManager(t.cnf)
			if err := bm.BackupToS3(cmd.Context()); err != nil {
				logrus.Error(err)
				return
			}
		},
	}

	return cmd
}
