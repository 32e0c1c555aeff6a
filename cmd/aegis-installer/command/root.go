/*
Copyright © 2022 - 2024 SUSE LLC

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

// Package command wires the aegis-installer CLI surface: flag parsing,
// config ingest, and orchestrator invocation.
package command

import (
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "aegis-installer",
	Short: "Athena OS target-system installer",
	Long:  "aegis-installer lays out disks, stages packages, and assembles a bootable Athena OS install from a JSON configuration.",
}

// Execute runs the CLI, returning the first error any subcommand produces.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log verbosity: debug, info, warn, error")
	rootCmd.AddCommand(installCmd)
}
