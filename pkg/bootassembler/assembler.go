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

package bootassembler

import (
	"fmt"
	"path/filepath"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/execrunner"
	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/athena-os/aegis-installer/pkg/luks"
	"github.com/athena-os/aegis-installer/pkg/types"
	efi "github.com/canonical/go-efilib"
)

// Assembler drives the UEFI boot pipeline: systemd-boot install, Secure
// Boot key material, per-flavor UKI builds, shim staging, and MOK
// pre-enrollment.
type Assembler struct {
	runner types.Runner
	files  *fileops.FileOps
	log    types.Logger
	esp    string
}

// New builds an Assembler rooted at esp, the mounted ESP directory
// (typically /mnt/boot/efi).
func New(runner types.Runner, files *fileops.FileOps, log types.Logger, esp string) *Assembler {
	return &Assembler{runner: runner, files: files, log: log, esp: esp}
}

func (a *Assembler) eval(call func() (types.CommandResult, error), description string) error {
	result, err := call()
	return execrunner.Eval(a.log, result, err, description)
}

// Assemble runs Steps B through H in order. cmdline is the string produced
// by BuildCmdline; microcode is the initramfs-relative microcode image
// (from Probe.MicrocodeImage) prepended to each UKI's initrd chain, or ""
// when the CPU vendor wasn't recognized.
func (a *Assembler) Assemble(cmdline, microcode string) error {
	a.logSecureBootState()

	if err := a.installSystemdBoot(); err != nil {
		return err
	}
	if err := GenerateMOKKeys(a.files); err != nil {
		return err
	}
	if err := a.signSystemdBoot(); err != nil {
		return err
	}
	for _, flavor := range constants.KernelFlavors {
		if err := a.buildUKI(flavor, cmdline, microcode); err != nil {
			return err
		}
	}
	if err := a.writeLoaderConf(); err != nil {
		return err
	}
	if err := a.stageShim(); err != nil {
		return err
	}
	return a.enrollMOK()
}

// logSecureBootState reads the firmware's SecureBoot EFI variable purely
// for diagnostics; a host without efivarfs mounted (e.g. a test sandbox or
// a BIOS-booted build chroot) is not an error.
func (a *Assembler) logSecureBootState() {
	data, _, err := efi.ReadVariable(efi.GlobalVariable, "SecureBoot")
	if err != nil {
		a.log.Debugf("SecureBoot EFI variable unavailable: %v", err)
		return
	}
	if len(data) == 1 {
		a.log.Infof("firmware SecureBoot variable reports %d", data[0])
	}
}

func (a *Assembler) installSystemdBoot() error {
	return a.eval(func() (types.CommandResult, error) {
		return a.runner.Exec("bootctl", "--esp-path="+a.esp, "--boot-path="+a.esp, "install")
	}, "install systemd-boot")
}

func (a *Assembler) signSystemdBoot() error {
	path := filepath.Join(a.esp, constants.EFISystemdDir, constants.SystemdBootName)
	keyPath := filepath.Join(constants.SecurebootDir, constants.MOKKeyFile)
	certPath := filepath.Join(constants.SecurebootDir, constants.MOKCertFile)
	return a.eval(func() (types.CommandResult, error) {
		return a.runner.Exec("sbsign", "--key", keyPath, "--cert", certPath, "--output", path, path)
	}, "sign systemd-boot")
}

func (a *Assembler) buildUKI(flavor, cmdline, microcode string) error {
	keyPath := filepath.Join(constants.SecurebootDir, constants.MOKKeyFile)
	certPath := filepath.Join(constants.SecurebootDir, constants.MOKCertFile)
	output := filepath.Join(a.esp, constants.EFIAthenaDir, flavor+".efi")

	args := []string{"build", "--linux", "/boot/vmlinuz-" + flavor}
	if microcode != "" {
		args = append(args, "--initrd", microcode)
	}
	args = append(args,
		"--initrd", "/boot/initramfs-"+flavor+".img",
		"--cmdline", cmdline,
		"--os-release", "/usr/lib/os-release",
		"--uname", flavor,
		"--signtool=sbsign",
		"--secureboot-private-key="+keyPath,
		"--secureboot-certificate="+certPath,
		"--output", output,
	)

	if err := a.eval(func() (types.CommandResult, error) {
		return a.runner.Exec("ukify", args...)
	}, "build UKI for "+flavor); err != nil {
		return err
	}

	entry := fmt.Sprintf("title Athena OS (%s)\nefi /EFI/Athena/%s.efi\n", prettyName(flavor), flavor)
	entryPath := filepath.Join(a.esp, constants.LoaderEntries, "athena-"+flavor+".conf")
	return a.files.WriteFile(entryPath, []byte(entry), constants.FilePerm)
}

func prettyName(flavor string) string {
	switch flavor {
	case "linux-lts":
		return "LTS"
	case "linux-hardened":
		return "Hardened"
	default:
		return flavor
	}
}

func (a *Assembler) writeLoaderConf() error {
	content := fmt.Sprintf(
		"default %s\ntimeout %d\nconsole-mode keep\neditor no\n",
		constants.DefaultLoaderEntry, constants.LoaderTimeout,
	)
	return a.files.WriteFile(filepath.Join(a.esp, constants.LoaderDir, "loader.conf"), []byte(content), constants.FilePerm)
}

func (a *Assembler) stageShim() error {
	bootDir := filepath.Join(a.esp, constants.EFIBootDir)
	if err := a.files.CreateDirectory(bootDir); err != nil {
		return err
	}
	if err := a.files.CopyFile(constants.ShimSourcePath, filepath.Join(bootDir, constants.ShimDestName)); err != nil {
		return err
	}
	if err := a.files.CopyFile(constants.MMSourcePath, filepath.Join(bootDir, constants.MokManagerDestName)); err != nil {
		return err
	}
	signed := filepath.Join(a.esp, constants.EFISystemdDir, constants.SystemdBootName)
	return a.files.CopyFile(signed, filepath.Join(bootDir, constants.GrubDestName))
}

func (a *Assembler) enrollMOK() error {
	src := filepath.Join(constants.SecurebootDir, constants.MOKDerFile)
	dst := filepath.Join(a.esp, constants.EFIAthenaDir, "AthenaSecureBoot.cer")
	if err := a.files.CopyFile(src, dst); err != nil {
		return err
	}
	return a.eval(func() (types.CommandResult, error) {
		return a.runner.Exec("mokutil", "--import", dst, "-P")
	}, "pre-enroll MOK key")
}

// FindLUKSForCmdline is a thin convenience wrapper so callers building a
// cmdline don't need to import pkg/luks directly.
func FindLUKSForCmdline(m *luks.Manager) ([]luks.Partition, error) {
	partitions, _, err := m.FindLUKSPartitions()
	return partitions, err
}
