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

package types

import (
	"fmt"

	"github.com/athena-os/aegis-installer/pkg/constants"
)

// UserSpec describes one target-system account to be created during
// configuration.
type UserSpec struct {
	Name         string   `json:"name" mapstructure:"name"`
	PasswordHash string   `json:"password_hash" mapstructure:"password_hash"`
	Groups       []string `json:"groups" mapstructure:"groups"`
	Shell        string   `json:"shell" mapstructure:"shell"`
}

// PartitionDescriptor is one entry of a PartitionSpec's partition list, as
// supplied by the caller before any planning has happened.
type PartitionDescriptor struct {
	Action      string   `json:"action" mapstructure:"action"`
	BlockDevice string   `json:"blockdevice" mapstructure:"blockdevice"`
	Start       int64    `json:"start" mapstructure:"start"`
	End         int64    `json:"end" mapstructure:"end"`
	Filesystem  string   `json:"filesystem" mapstructure:"filesystem"`
	MountPoint  string   `json:"mountpoint" mapstructure:"mountpoint"`
	Flags       []string `json:"flags" mapstructure:"flags"`
}

// HasFlag reports whether the descriptor carries the named flag.
func (d PartitionDescriptor) HasFlag(flag string) bool {
	for _, f := range d.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// PartitionContent is the `content` object nested in a PartitionSpec.
type PartitionContent struct {
	TableType  string                 `json:"table_type" mapstructure:"table_type"`
	Partitions []PartitionDescriptor  `json:"partitions" mapstructure:"partitions"`
}

// PartitionSpec is the caller-supplied description of how to lay out a disk.
type PartitionSpec struct {
	Device  string           `json:"device" mapstructure:"device"`
	Mode    string           `json:"mode" mapstructure:"mode"`
	Content PartitionContent `json:"content" mapstructure:"content"`
}

// InstallerConfig is the root record produced once by ConfigIngest and
// treated as read-only by every component downstream.
type InstallerConfig struct {
	Base           string        `json:"base" mapstructure:"base"`
	Partition      PartitionSpec `json:"partition" mapstructure:"partition"`
	Locale         string        `json:"locale" mapstructure:"locale"`
	Keyboard       string        `json:"keyboard_layout" mapstructure:"keyboard_layout"`
	Timezone       string        `json:"timezone" mapstructure:"timezone"`
	Hostname       string        `json:"hostname" mapstructure:"hostname"`
	Users          []UserSpec    `json:"users" mapstructure:"users"`
	RootPasswdHash string        `json:"root_passwd_hash" mapstructure:"root_passwd_hash"`
	Desktop        string        `json:"desktop" mapstructure:"desktop"`
	DisplayManager string        `json:"displaymanager" mapstructure:"displaymanager"`
	Design         string        `json:"design" mapstructure:"design"`
	Browser        string        `json:"browser" mapstructure:"browser"`
	Terminal       string        `json:"terminal" mapstructure:"terminal"`
	ExtraPackages  []string      `json:"extra_packages" mapstructure:"extra_packages"`
	Kernel         string        `json:"kernel" mapstructure:"kernel"`
}

// Sanitize fills defaults and enforces the invariants ConfigIngest must
// reject before any destructive step runs.
func (c *InstallerConfig) Sanitize() error {
	switch c.Base {
	case constants.AthenaArch, constants.AthenaFedora, constants.AthenaNix:
	default:
		return fmt.Errorf("unknown base %q", c.Base)
	}
	if c.Hostname == "" {
		return fmt.Errorf("hostname must not be empty")
	}
	if c.Kernel == "" {
		c.Kernel = constants.DefaultKernel
	}

	switch c.Partition.Mode {
	case constants.ModeEraseDisk, constants.ModeManual, constants.ModeReplace:
	default:
		return fmt.Errorf("unknown partition mode %q", c.Partition.Mode)
	}
	switch c.Partition.Content.TableType {
	case constants.GPT, constants.MSDOS:
	default:
		return fmt.Errorf("unknown partition table type %q", c.Partition.Content.TableType)
	}

	rootCount := 0
	lastRootIsLast := false
	luksCount := 0
	for i, p := range c.Partition.Content.Partitions {
		if p.MountPoint == "/" {
			rootCount++
			lastRootIsLast = i == len(c.Partition.Content.Partitions)-1
		}
		if p.HasFlag(constants.FlagEncrypt) {
			luksCount++
		}
		if p.HasFlag(constants.FlagESP) {
			if p.Filesystem != constants.FSFat32 && p.Filesystem != constants.FSVfat {
				return fmt.Errorf("esp partition %s must be fat32", p.BlockDevice)
			}
			if p.MountPoint != "/boot/efi" {
				return fmt.Errorf("esp partition %s must mount at /boot/efi", p.BlockDevice)
			}
		}
		if c.Partition.Mode == constants.ModeManual && p.HasFlag(constants.FlagBoot) && p.HasFlag(constants.FlagESP) {
			return fmt.Errorf("partition %s cannot carry both boot and esp flags in Manual mode", p.BlockDevice)
		}
	}
	if rootCount != 1 {
		return fmt.Errorf("exactly one partition must mount at /, found %d", rootCount)
	}
	if luksCount > 1 && !lastRootIsLast {
		return fmt.Errorf("root partition must be created last when multiple LUKS containers are in use")
	}

	return nil
}

// DiskStatus is the lifecycle state of a planner-internal partition.
type DiskStatus string

const (
	StatusExists DiskStatus = "Exists"
	StatusModify DiskStatus = "Modify"
	StatusCreate DiskStatus = "Create"
	StatusDelete DiskStatus = "Delete"
)

// DiskPartition is one partition slot of a planner-internal Disk layout.
type DiskPartition struct {
	ID          int
	Status      DiskStatus
	Start       int64
	SizeSectors int64
	FSType      string
	MountPoint  string
	Label       string
	Flags       []string
}

// DiskFreeSpace is an unallocated run of sectors in a planner-internal Disk
// layout, addressable by its own id so planner operations that reshape the
// layout never invalidate references held elsewhere.
type DiskFreeSpace struct {
	ID    int
	Start int64
	Size  int64
}

// DiskItem is one element of a Disk's ordered layout: exactly one of
// Partition or FreeSpace is set.
type DiskItem struct {
	Partition *DiskPartition
	FreeSpace *DiskFreeSpace
}

// Disk is the PartitionPlanner's internal model of a block device's layout,
// rediscovered from the live block layer rather than carried across phases.
type Disk struct {
	DevicePath string
	SectorSize int64
	Layout     []DiskItem
}
