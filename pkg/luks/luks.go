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

// Package luks implements the EncryptionManager: discovery of LUKS
// containers on the live block layer (for BootAssembler's cmdline
// generation) and a TPM2 availability probe. LUKS format/open/close
// themselves live in pkg/partitioner, which owns the mount lifecycle they
// interleave with.
package luks

import (
	"os"
	"strings"

	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/pkg/errors"
)

// Partition is one LUKS container discovered on the host.
type Partition struct {
	DevicePath string
	UUID       string
}

// Manager probes the live block layer for LUKS containers.
type Manager struct {
	runner types.Runner
}

// New builds a Manager.
func New(runner types.Runner) *Manager {
	return &Manager{runner: runner}
}

// FindLUKSPartitions enumerates block devices and returns every partition
// whose filesystem type is crypto_LUKS, alongside whether any were found.
func (m *Manager) FindLUKSPartitions() ([]Partition, bool, error) {
	result, err := m.runner.Exec("lsblk", "-rno", "NAME,FSTYPE,UUID")
	if err != nil {
		return nil, false, errors.Wrap(err, "run lsblk")
	}
	if !result.Success() {
		return nil, false, errors.Errorf("lsblk exited %d: %s", result.ExitCode, result.Stderr)
	}

	var partitions []Partition
	for _, line := range strings.Split(result.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		name, fstype, uuid := fields[0], fields[1], fields[2]
		if fstype != "crypto_LUKS" {
			continue
		}
		partitions = append(partitions, Partition{
			DevicePath: "/dev/" + name,
			UUID:       uuid,
		})
	}
	return partitions, len(partitions) > 0, nil
}

// tpm2DevicePaths are the kernel device nodes that indicate a usable TPM2
// resource manager is present.
var tpm2DevicePaths = []string{"/dev/tpmrm0", "/dev/tpm0"}

// TPM2Available probes for a usable TPM2 device, so the caller can add
// tpm2-tools to the Arch base package set.
func TPM2Available() bool {
	for _, path := range tpm2DevicePaths {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}
