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

package command

import (
	"context"
	"io"
	"os"

	"github.com/athena-os/aegis-installer/pkg/configingest"
	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/execrunner"
	"github.com/athena-os/aegis-installer/pkg/orchestrator"
	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"k8s.io/mount-utils"
)

var (
	systemFiles []string
	drivesFiles []string
	jsonStrings []string
	logPath     string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Run an unattended installation from one or more JSON configuration sources",
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().StringArrayVar(&systemFiles, "system-file", nil, "path to a JSON config fragment (repeatable)")
	installCmd.Flags().StringArrayVar(&drivesFiles, "drives-file", nil, "path to a JSON partition-layout fragment (repeatable)")
	installCmd.Flags().StringArrayVar(&jsonStrings, "json", nil, "inline JSON config fragment, or \"-\" to read one from stdin (repeatable)")
	installCmd.Flags().StringVar(&logPath, "log-file", constants.InstallLogPath, "path to the installer's own log file")
}

func runInstall(cmd *cobra.Command, args []string) error {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log := types.NewLogger(io.MultiWriter(logFile, os.Stdout))
	log.SetLevel(logLevel)

	var inputs []configingest.Input
	for _, path := range systemFiles {
		inputs = append(inputs, configingest.FileInput(path))
	}
	for _, path := range drivesFiles {
		inputs = append(inputs, configingest.FileInput(path))
	}
	for _, literal := range jsonStrings {
		inputs = append(inputs, configingest.StringInput(literal))
	}
	if len(inputs) == 0 {
		return cmd.Help()
	}

	cfg, err := configingest.Ingest(inputs, log, os.Stdin)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	runner := execrunner.New()
	mounter := mount.New("")

	o := orchestrator.New(cfg, runner, fs, mounter, log, logPath)

	ctx := context.Background()
	if err := o.Run(ctx); err != nil {
		log.Errorf("install failed: %v", err)
		return err
	}

	log.Info("install finished successfully")
	return nil
}
