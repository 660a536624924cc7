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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tandemhq/tandem"
	"github.com/tandemhq/tandem/config"
	"github.com/tandemhq/tandem/database"
	"github.com/tandemhq/tandem/internal/notification"
)

// Tandem wraps the root cobra command for the CLI.
type Tandem struct {
	cmd *cobra.Command
}

// tandemInstance carries the engine and configuration shared by all
// subcommands.
type tandemInstance struct {
	tandem *tandem.Tandem
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and initializes the engine before any subcommand
// runs.
func preRun(app *tandemInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		if err := config.InitConfig(configFile); err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newTandem, err := setupTandem(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.tandem = newTandem
		app.cnf = cnf

		return nil
	}
}

func setupTandem(cfg *config.Configuration) (*tandem.Tandem, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newTandem, err := tandem.NewTandem(db)
	if err != nil {
		return nil, fmt.Errorf("error creating tandem: %v", err)
	}
	return newTandem, nil
}

// NewCLI assembles the root command and its subcommands.
func NewCLI() *Tandem {
	var configFile string
	t := &tandemInstance{}

	var rootCmd = &cobra.Command{
		Use:   "tandem",
		Short: "Transaction coordinator: reservations, sagas and a double-entry ledger",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./tandem.json", "Configuration file for tandem")
	rootCmd.PersistentPreRunE = preRun(t)

	rootCmd.AddCommand(serverCommands(t))
	rootCmd.AddCommand(workerCommands(t))
	rootCmd.AddCommand(migrateCommands(t))
	rootCmd.AddCommand(backupCommands(t))
	rootCmd.AddCommand(configCommands())

	return &Tandem{cmd: rootCmd}
}

func (w Tandem) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
