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

// Package shellconfig maps the first user's shell preference onto a
// package set and the skeleton-file edits that advertise it system-wide.
// The account's actual login shell is always /bin/bash regardless of this
// preference, matching the convention that only the package and
// environment-level choice follow the user, not the real getpwnam shell.
package shellconfig

import (
	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/fileops"
)

// Packages returns the packages shell's setup stage installs.
func Packages(shell string) []string {
	switch shell {
	case "Fish":
		return []string{"athena-fish"}
	case "Zsh":
		return []string{"athena-zsh"}
	case "Bash", "":
		return []string{"bash", "bash-completion", "blesh-git"}
	default:
		return nil
	}
}

// Apply patches the skeleton .bashrc's SHELL export and drops a
// profile.d script so every login shell picks up shell's preferred
// interactive shell, mirroring install_shell_setup's post-package edits.
func Apply(files *fileops.FileOps, shell string) error {
	if shell == "" || shell == "Bash" {
		return nil
	}

	bin := shellBinary(shell)

	if err := files.SedFile(
		constants.TargetRoot+"/etc/skel/.bashrc",
		`(?m)^export SHELL=.*$`,
		"export SHELL="+bin,
	); err != nil {
		return err
	}

	path := constants.TargetRoot + "/etc/profile.d/shell.sh"
	if err := files.CreateFile(path); err != nil {
		return err
	}
	return files.AppendFile(path, "export SHELL=$(which "+bin+")")
}

func shellBinary(shell string) string {
	switch shell {
	case "Fish":
		return "fish"
	case "Zsh":
		return "zsh"
	default:
		return "bash"
	}
}
