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

package partitioner

import (
	"fmt"
	"strings"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/types"
)

// eraseDisk lays down the parametric EraseDisk layout, then formats and
// mounts every resulting partition in order.
func (p *Planner) eraseDisk(cfg *types.InstallerConfig, efi bool) error {
	device := cfg.Partition.Device
	encrypted, swapSize := eraseDiskOptions(cfg)

	if efi {
		if err := p.layoutEFI(device, encrypted, swapSize); err != nil {
			return err
		}
	} else {
		if err := p.layoutLegacy(device, swapSize); err != nil {
			return err
		}
	}

	return p.formatEraseDiskLayout(device, efi, encrypted, swapSize != "")
}

// eraseDiskOptions derives whether root is encrypted and the configured
// swap size (empty if no swap partition is requested) from the descriptor
// list supplied alongside an EraseDisk spec.
func eraseDiskOptions(cfg *types.InstallerConfig) (encrypted bool, swapSize string) {
	for _, d := range cfg.Partition.Content.Partitions {
		if d.MountPoint == "/" && d.HasFlag(constants.FlagEncrypt) {
			encrypted = true
		}
		if d.Filesystem == constants.FSSwap {
			swapSize = fmt.Sprintf("%dMiB", d.End-d.Start)
		}
	}
	return encrypted, swapSize
}

func (p *Planner) layoutEFI(device string, encrypted bool, swapSize string) error {
	run := func(args ...string) error {
		full := append([]string{"-s", device, "--"}, args...)
		return p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("parted", full...) },
			fmt.Sprintf("parted %s", strings.Join(args, " ")))
	}

	if err := run("mklabel", "gpt"); err != nil {
		return err
	}
	if err := run("mkpart", "ESP", "fat32", "1MiB", "512MiB"); err != nil {
		return err
	}
	if err := run("set", "1", "esp", "on"); err != nil {
		return err
	}

	grubBoundary := "512MiB"
	if encrypted {
		grubBoundary = "1536MiB"
		if err := run("mkpart", "primary", "ext4", "512MiB", grubBoundary); err != nil {
			return err
		}
	}

	boundary := grubBoundary
	if swapSize != "" {
		boundary = swapSize
		if err := run("mkpart", "primary", "linux-swap", grubBoundary, boundary); err != nil {
			return err
		}
	}

	return run("mkpart", "primary", "btrfs", boundary, "100%")
}

func (p *Planner) layoutLegacy(device, swapSize string) error {
	run := func(args ...string) error {
		full := append([]string{"-s", device, "--"}, args...)
		return p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("parted", full...) },
			fmt.Sprintf("parted %s", strings.Join(args, " ")))
	}

	if err := run("mklabel", "msdos"); err != nil {
		return err
	}
	if err := run("mkpart", "primary", "ext4", "1MiB", "512MiB"); err != nil {
		return err
	}

	boundary := "512MiB"
	if swapSize != "" {
		boundary = swapSize
		if err := run("mkpart", "primary", "linux-swap", "512MiB", boundary); err != nil {
			return err
		}
	}

	if err := run("mkpart", "primary", "btrfs", boundary, "100%"); err != nil {
		return err
	}
	return run("set", "1", "boot", "on")
}

// formatEraseDiskLayout formats and mounts the partitions just created by
// layoutEFI/layoutLegacy, deriving block device names from device + the
// device-suffix rule.
func (p *Planner) formatEraseDiskLayout(device string, efi, encrypted, swap bool) error {
	suffix := deviceSuffix(device)
	part := func(index int) string { return fmt.Sprintf("%s%s%d", device, suffix, index) }

	index := 1
	if efi {
		if err := p.evalRunner(func() (types.CommandResult, error) {
			return p.runner.Exec("mkfs.fat", "-F", "32", "-n", "BOOT", part(index))
		}, fmt.Sprintf("format %s as fat32", part(index))); err != nil {
			return err
		}
		if encrypted {
			index++
			if err := p.evalRunner(func() (types.CommandResult, error) {
				return p.runner.Exec("mkfs.ext4", "-F", part(index))
			}, fmt.Sprintf("format %s as ext4", part(index))); err != nil {
				return err
			}
		}
	} else {
		if err := p.evalRunner(func() (types.CommandResult, error) {
			return p.runner.Exec("mkfs.ext4", "-F", part(index))
		}, fmt.Sprintf("format %s as ext4", part(index))); err != nil {
			return err
		}
	}

	if swap {
		index++
		if err := p.evalRunner(func() (types.CommandResult, error) {
			return p.runner.Exec("mkswap", "-L", "swap", part(index))
		}, fmt.Sprintf("make %s a swap partition", part(index))); err != nil {
			return err
		}
		if err := p.evalRunner(func() (types.CommandResult, error) {
			return p.runner.Exec("swapon", part(index))
		}, fmt.Sprintf("activate %s swap device", part(index))); err != nil {
			return err
		}
	}

	index++
	rootDevice := part(index)
	if encrypted {
		rootName := rootDeviceName(rootDevice)
		cryptLabel := rootName + "crypted"
		if err := p.encryptBlockDevice(rootDevice, cryptLabel); err != nil {
			return err
		}
		rootDevice = "/dev/mapper/" + cryptLabel
	}

	if err := p.evalRunner(func() (types.CommandResult, error) {
		return p.runner.Exec("mkfs.btrfs", "-L", "athenaos", "-f", rootDevice)
	}, fmt.Sprintf("format %s as btrfs", rootDevice)); err != nil {
		return err
	}

	if err := p.mount(rootDevice, constants.TargetRoot, ""); err != nil {
		return err
	}
	if err := p.evalRunner(func() (types.CommandResult, error) {
		return p.runner.ExecInWorkdir("btrfs", constants.TargetRoot, "subvolume", "create", constants.RootSubvol)
	}, "create btrfs subvolume @"); err != nil {
		return err
	}
	if err := p.evalRunner(func() (types.CommandResult, error) {
		return p.runner.ExecInWorkdir("btrfs", constants.TargetRoot, "subvolume", "create", constants.HomeSubvol)
	}, "create btrfs subvolume @home"); err != nil {
		return err
	}
	if err := p.unmount(constants.TargetRoot); err != nil {
		return err
	}
	if err := p.mount(rootDevice, constants.TargetRoot, "subvol="+constants.RootSubvol); err != nil {
		return err
	}

	bootMount := constants.TargetRoot + "/boot"
	if efi {
		bootMount = constants.TargetRoot + "/boot/efi"
	}
	if err := p.files.CreateDirectory(bootMount); err != nil {
		return err
	}
	homeDir := constants.TargetRoot + "/home"
	if err := p.files.CreateDirectory(homeDir); err != nil {
		return err
	}
	if err := p.mount(rootDevice, homeDir, "subvol="+constants.HomeSubvol); err != nil {
		return err
	}

	if efi && encrypted {
		if err := p.mount(part(2), constants.TargetRoot+"/boot", ""); err != nil {
			return err
		}
	}
	return p.mount(part(1), bootMount, "")
}

func rootDeviceName(device string) string {
	return device[len("/dev/"):]
}
