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

package hardware

import "github.com/athena-os/aegis-installer/pkg/fileops"

// baseMkinitcpioConf is the initial target-root mkinitcpio.conf content,
// carrying every hook an encrypted LUKS root needs at boot (sd-encrypt,
// ahead of lvm2/filesystems/fsck) alongside the quoted MODULES="" line the
// GPU/virt probes' Edits sed-append onto.
const baseMkinitcpioConf = `MODULES=""
BINARIES=()
FILES=()
HOOKS=(base systemd autodetect modconf kms keyboard sd-vconsole block sd-encrypt lvm2 filesystems fsck)
COMPRESSION="gzip"
`

// WriteBaseMkinitcpioConf lays down mkinitcpioPath's base content. Callers
// apply DetectGPU/DetectVirt's MODULES= edits on top of this afterward.
func (p *Probe) WriteBaseMkinitcpioConf(files *fileops.FileOps) error {
	return files.WriteFile(mkinitcpioPath, []byte(baseMkinitcpioConf), 0644)
}
