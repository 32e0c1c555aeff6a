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

// Package bootassembler implements BootAssembler: kernel cmdline
// construction, UKI generation per kernel flavor, systemd-boot install and
// signing, shim staging, loader entries, and MOK pre-enrollment.
package bootassembler

import (
	"fmt"
	"strings"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/luks"
)

// BuildCmdline constructs the kernel command line per Step A: LUKS root
// discovery (or plain UUID root), btrfs subvol flag, the fixed hardening
// flags, and the optional Hyper-V guest video flag.
func BuildCmdline(luksPartitions []luks.Partition, rootUUID string, rootIsBtrfs, hyperV bool) string {
	var parts []string

	if len(luksPartitions) > 0 {
		var lastLabel string
		for _, part := range luksPartitions {
			label := strings.TrimPrefix(part.DevicePath, "/dev/") + "crypted"
			parts = append(parts, fmt.Sprintf("rd.luks.name=%s=%s", part.UUID, label))
			lastLabel = label
		}
		parts = append(parts, "root=/dev/mapper/"+lastLabel)
	} else {
		parts = append(parts, "root=UUID="+rootUUID)
	}

	if rootIsBtrfs {
		parts = append(parts, "rootflags=subvol="+constants.RootSubvol)
	}

	parts = append(parts, constants.HardeningCmdline)

	if hyperV {
		parts = append(parts, constants.HyperVVideoCmdline)
	}

	return strings.Join(parts, " ")
}
