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

// Package partitioner implements the PartitionPlanner: it turns a
// PartitionSpec into table/partition/format/mount operations against a real
// block device, owning LUKS open/close and swap activation along the way.
package partitioner

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/execrunner"
	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// luksKDFIterations is the PBKDF2 round count used to stretch the ephemeral
// LUKS keyfile's random entropy into the key written to
// constants.LUKSKeyFile. The hex string in that file is itself the key
// cryptsetup formats and opens the container with.
const luksKDFIterations = 4096

// Planner executes a PartitionSpec against a real disk.
type Planner struct {
	runner  types.Runner
	mounter types.Mounter
	files   *fileops.FileOps
	log     types.Logger
}

// New builds a Planner.
func New(runner types.Runner, mounter types.Mounter, files *fileops.FileOps, log types.Logger) *Planner {
	return &Planner{runner: runner, mounter: mounter, files: files, log: log}
}

// Plan executes cfg.Partition against the real block device named by
// cfg.Partition.Device.
func (p *Planner) Plan(cfg *types.InstallerConfig) error {
	device := cfg.Partition.Device
	if _, err := os.Stat(device); err != nil {
		return errors.Errorf("the device %s doesn't exist", device)
	}

	efi := cfg.Partition.Content.TableType == constants.GPT

	switch cfg.Partition.Mode {
	case constants.ModeEraseDisk:
		return p.eraseDisk(cfg, efi)
	case constants.ModeManual, constants.ModeReplace:
		return p.manual(cfg, efi)
	default:
		return errors.Errorf("unknown partition mode %q", cfg.Partition.Mode)
	}
}

func (p *Planner) manual(cfg *types.InstallerConfig, efi bool) error {
	disk, err := InspectDisk(cfg.Partition.Device)
	if err != nil {
		return err
	}
	p.log.Infof("discovered %d existing partition(s) on %s", len(disk.Layout), disk.DevicePath)

	partitions := append([]types.PartitionDescriptor(nil), cfg.Partition.Content.Partitions...)
	sort.SliceStable(partitions, func(i, j int) bool {
		return len(partitions[i].MountPoint) < len(partitions[j].MountPoint)
	})

	for _, part := range partitions {
		action := part.Action
		if action == "" {
			action = constants.ActionCreate
		}
		p.log.Infof("partition %s: action=%s mountpoint=%s filesystem=%s encrypt=%v",
			part.BlockDevice, action, part.MountPoint, part.Filesystem, part.HasFlag(constants.FlagEncrypt))

		switch action {
		case constants.ActionExists:
			if diskPartitionByOrdinal(disk, part.BlockDevice) == nil {
				return errors.Errorf("partition %s marked %q but not found on %s", part.BlockDevice, constants.ActionExists, disk.DevicePath)
			}
			if err := p.mountExisting(part); err != nil {
				return err
			}
		case constants.ActionDelete:
			if err := p.deletePartition(cfg.Partition.Device, part); err != nil {
				return err
			}
		default: // create, modify
			if err := p.formatAndMount(cfg.Partition.Device, part, efi); err != nil {
				return err
			}
		}
	}
	return nil
}

// mountExisting mounts an already-formatted partition found on the live
// disk, for descriptors the caller marked constants.ActionExists rather than
// asking the Planner to format over them.
func (p *Planner) mountExisting(d types.PartitionDescriptor) error {
	target := strings.TrimSuffix(constants.TargetRoot+d.MountPoint, "/")
	if err := p.files.CreateDirectory(target); err != nil {
		return err
	}
	return p.mount(d.BlockDevice, target, "")
}

// deletePartition removes a partition entry from diskDevice's table via
// parted, for descriptors marked constants.ActionDelete.
func (p *Planner) deletePartition(diskDevice string, d types.PartitionDescriptor) error {
	num := extractPartitionNumber(d.BlockDevice)
	return p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("parted", "-s", diskDevice, "--", "rm", num) },
		"delete partition "+d.BlockDevice)
}

// formatAndMount implements the format_and_mount contract: optional LUKS
// encryption, mkfs per filesystem, ESP/boot flag toggling, and the final
// mount (or subvolume dance for btrfs).
func (p *Planner) formatAndMount(diskDevice string, d types.PartitionDescriptor, efi bool) error {
	bdevice := d.BlockDevice
	cryptLabel := strings.TrimPrefix(bdevice, "/dev/") + "crypted"
	target := strings.TrimSuffix(constants.TargetRoot+d.MountPoint, "/")

	if d.HasFlag(constants.FlagEncrypt) {
		if err := p.encryptBlockDevice(bdevice, cryptLabel); err != nil {
			return err
		}
		bdevice = "/dev/mapper/" + cryptLabel
	}

	needsFinalMount := true
	switch d.Filesystem {
	case constants.FSVfat, constants.FSFat32:
		if err := p.mkfs("mkfs.vfat", "-F32", bdevice); err != nil {
			return err
		}
	case constants.FSExt2:
		if err := p.mkfs("mkfs.ext2", "-F", bdevice); err != nil {
			return err
		}
	case constants.FSExt3:
		if err := p.mkfs("mkfs.ext3", "-F", bdevice); err != nil {
			return err
		}
	case constants.FSExt4:
		if err := p.mkfs("mkfs.ext4", "-F", bdevice); err != nil {
			return err
		}
	case constants.FSXFS:
		if err := p.mkfs("mkfs.xfs", "-f", bdevice); err != nil {
			return err
		}
	case constants.FSF2FS:
		if err := p.mkfs("mkfs.f2fs", "-f", bdevice); err != nil {
			return err
		}
	case constants.FSNTFS:
		if err := p.mkfs("mkfs.ntfs", bdevice); err != nil {
			return err
		}
	case constants.FSBtrfs:
		if err := p.mkfs("mkfs.btrfs", "-f", bdevice); err != nil {
			return err
		}
		if err := p.mountBtrfsSubvolumes(bdevice, target); err != nil {
			return err
		}
		needsFinalMount = false
	case constants.FSSwap:
		if err := p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("mkswap", "-L", "swap", bdevice) }, "format "+bdevice+" as swap"); err != nil {
			return err
		}
		if err := p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("swapon", bdevice) }, "activate swap "+bdevice); err != nil {
			return err
		}
		needsFinalMount = false
	case constants.FSDontFormat:
		p.log.Debugf("not formatting %s", bdevice)
	default:
		return errors.Errorf("unknown filesystem %q on partition %s", d.Filesystem, bdevice)
	}

	if d.HasFlag(constants.FlagBoot) || d.HasFlag(constants.FlagESP) {
		if err := p.setBootFlag(diskDevice, bdevice, efi && d.HasFlag(constants.FlagESP)); err != nil {
			return err
		}
	}

	if needsFinalMount {
		if err := p.files.CreateDirectory(target); err != nil {
			return err
		}
		if err := p.mount(bdevice, target, ""); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) mkfs(program string, args ...string) error {
	device := args[len(args)-1]
	return p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec(program, args...) }, fmt.Sprintf("format %s as %s", device, strings.TrimPrefix(program, "mkfs.")))
}

// mountBtrfsSubvolumes implements the `@`/`@home` subvolume dance: format
// already done by the caller, mount at /mnt, create subvolumes, remount
// with subvol= options.
func (p *Planner) mountBtrfsSubvolumes(bdevice, rootMount string) error {
	if err := p.mount(bdevice, constants.TargetRoot, ""); err != nil {
		return err
	}
	if err := p.evalRunner(func() (types.CommandResult, error) { return p.runner.ExecInWorkdir("btrfs", constants.TargetRoot, "subvolume", "create", constants.RootSubvol) }, "create btrfs subvolume @"); err != nil {
		return err
	}
	if err := p.evalRunner(func() (types.CommandResult, error) { return p.runner.ExecInWorkdir("btrfs", constants.TargetRoot, "subvolume", "create", constants.HomeSubvol) }, "create btrfs subvolume @home"); err != nil {
		return err
	}
	if err := p.unmount(constants.TargetRoot); err != nil {
		return err
	}
	if err := p.mount(bdevice, rootMount, "subvol="+constants.RootSubvol); err != nil {
		return err
	}
	homeDir := rootMount + "/home"
	if err := p.files.CreateDirectory(homeDir); err != nil {
		return err
	}
	return p.mount(bdevice, homeDir, "subvol="+constants.HomeSubvol)
}

// setBootFlag toggles the ESP or legacy boot flag via parted, computing the
// partition ordinal by stripping the block device's trailing digits.
func (p *Planner) setBootFlag(diskDevice, bdevice string, esp bool) error {
	if esp {
		num := extractPartitionNumber(bdevice)
		return p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("parted", "-s", diskDevice, "--", "set", num, "esp", "on") },
			"enable EFI system partition on partition number "+num)
	}
	return p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("parted", "-s", diskDevice, "--", "set", "1", "boot", "on") },
		"set partition 1's boot flag to on")
}

// extractPartitionNumber returns the trailing run of digits of a block
// device name, e.g. "/dev/vda2" -> "2".
func extractPartitionNumber(bdevice string) string {
	end := len(bdevice)
	start := end
	for start > 0 && bdevice[start-1] >= '0' && bdevice[start-1] <= '9' {
		start--
	}
	return bdevice[start:end]
}

// deviceSuffix returns the infix separating a disk device from its
// partition index: "p" for nvme/mmcblk/loop devices, empty otherwise.
func deviceSuffix(device string) string {
	if strings.Contains(device, "nvme") || strings.Contains(device, "mmcblk") || strings.Contains(device, "loop") {
		return "p"
	}
	return ""
}

func (p *Planner) mount(device, mountpoint, options string) error {
	var opts []string
	if options != "" {
		opts = []string{options}
	}
	if err := p.mounter.Mount(device, mountpoint, "", opts); err != nil {
		return errors.Wrapf(err, "mount %s at %s", device, mountpoint)
	}
	p.log.Infof("mount %s with options %q at %s", device, options, mountpoint)
	return nil
}

func (p *Planner) unmount(mountpoint string) error {
	if err := p.mounter.Unmount(mountpoint); err != nil {
		return errors.Wrapf(err, "unmount %s", mountpoint)
	}
	p.log.Infof("unmount %s", mountpoint)
	return nil
}

// UnmountAll performs the final recursive unmount of the target root.
func (p *Planner) UnmountAll() error {
	return p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("umount", "-R", constants.TargetRoot) },
		"unmount -R "+constants.TargetRoot)
}

// encryptBlockDevice formats and opens a LUKS container over bdevice using
// a freshly generated ephemeral passphrase written to the well-known key
// file, then deletes the key file.
func (p *Planner) encryptBlockDevice(bdevice, cryptLabel string) error {
	entropy := make([]byte, 32)
	if _, err := rand.Read(entropy); err != nil {
		return errors.Wrap(err, "generate LUKS passphrase entropy")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "generate LUKS passphrase salt")
	}
	passphrase := pbkdf2.Key(entropy, salt, luksKDFIterations, 32, sha256.New)
	if err := p.files.WriteFile(constants.LUKSKeyFile, []byte(hex.EncodeToString(passphrase)), os.FileMode(constants.PrivKeyPerm)); err != nil {
		return err
	}

	if err := p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("cryptsetup", "luksFormat", "-q", bdevice, "-d", constants.LUKSKeyFile) }, "format LUKS partition"); err != nil {
		return err
	}
	if err := p.evalRunner(func() (types.CommandResult, error) { return p.runner.Exec("cryptsetup", "luksOpen", bdevice, cryptLabel, "-d", constants.LUKSKeyFile) }, "open LUKS format"); err != nil {
		return err
	}
	return p.files.RemoveFile(constants.LUKSKeyFile)
}

// CloseLUKS is the best-effort close run after the final unmount for every
// descriptor carrying the encrypt flag.
func (p *Planner) CloseLUKS(cryptLabel string) error {
	_, err := p.runner.Exec("cryptsetup", "luksClose", cryptLabel)
	if err != nil {
		p.log.Warnf("close LUKS container %s: %v", cryptLabel, err)
	}
	return err
}

func (p *Planner) evalRunner(call func() (types.CommandResult, error), description string) error {
	result, err := call()
	return execrunner.Eval(p.log, result, err, description)
}
