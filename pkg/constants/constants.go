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

package constants

import "os"

// Base distribution identifiers
const (
	AthenaArch   = "AthenaArch"
	AthenaFedora = "AthenaFedora"
	AthenaNix    = "AthenaNix"
)

// Partition table kinds
const (
	GPT   = "gpt"
	MSDOS = "msdos"
)

// Partitioning modes
const (
	ModeEraseDisk = "EraseDisk"
	ModeManual    = "Manual"
	ModeReplace   = "Replace"
)

// Partition descriptor actions
const (
	ActionCreate = "create"
	ActionModify = "modify"
	ActionDelete = "delete"
	ActionExists = "exists"
)

// Recognized partition flags
const (
	FlagBoot    = "boot"
	FlagESP     = "esp"
	FlagBLSBoot = "bls_boot"
	FlagEncrypt = "encrypt"
)

// Filesystem identifiers
const (
	FSExt2       = "ext2"
	FSExt3       = "ext3"
	FSExt4       = "ext4"
	FSBtrfs      = "btrfs"
	FSXFS        = "xfs"
	FSF2FS       = "f2fs"
	FSFat12      = "fat12"
	FSFat16      = "fat16"
	FSFat32      = "fat32"
	FSVfat       = "vfat"
	FSNTFS       = "ntfs"
	FSSwap       = "swap"
	FSDontFormat = "don't format"
)

// Btrfs subvolume names, matching the teacher's snapshotter convention
const (
	RootSubvol = "@"
	HomeSubvol = "@home"
)

// Well-known paths
const (
	TargetRoot     = "/mnt"
	LUKSKeyFile    = "/tmp/luks"
	KernelCmdline  = "/etc/kernel/cmdline"
	MakepkgConf    = "/etc/makepkg.conf"
	MkinitcpioConf = "/etc/mkinitcpio.conf"
	NsswitchConf   = "/etc/nsswitch.conf"
	FstabPath      = "/etc/fstab"
	ZramConf       = "/etc/systemd/zram-generator.conf"
	SecurebootDir  = "/etc/secureboot/keys"
	PacmanGnupgDir = "/etc/pacman.d/gnupg"
	PacmanConf     = "/etc/pacman.conf"
	PacmanMirrorlistDir = "/etc/pacman.d"
)

// PacmanMirrorlists are the host mirrorlist files Pacstrap needs copied into
// the freshly staged target root; blackarch/chaotic are optional repos so
// their absence on the host isn't fatal.
var PacmanMirrorlists = []string{"mirrorlist", "blackarch-mirrorlist", "chaotic-mirrorlist"}

// Secure boot / ESP layout
const (
	MOKKeyFile  = "MOK.key"
	MOKCertFile = "MOK.crt"
	MOKDerFile  = "MOK.cer"
	MOKCommonName = "Athena OS Secure Boot Key"

	EFIBootDir    = "EFI/BOOT"
	EFISystemdDir = "EFI/systemd"
	EFIAthenaDir  = "EFI/Athena"
	LoaderDir     = "loader"
	LoaderEntries = "loader/entries"

	ShimDestName       = "BOOTX64.EFI"
	MokManagerDestName = "mmx64.efi"
	GrubDestName       = "grubx64.efi"
	SystemdBootName    = "systemd-bootx64.efi"

	ShimSourcePath = "/usr/share/shim-signed/shimx64.efi"
	MMSourcePath   = "/usr/share/shim-signed/mmx64.efi"

	DefaultLoaderEntry = "athena-linux-lts.conf"
	LoaderTimeout      = 3
)

// Kernel flavors assembled into UKIs
var KernelFlavors = []string{"linux-lts", "linux-hardened"}

// DefaultKernel is used when InstallerConfig.Kernel is empty
const DefaultKernel = "linux-lts"

// Hardening / tuning kernel command line flags, always appended
const HardeningCmdline = "lsm=landlock,lockdown,yama,integrity,apparmor,bpf quiet loglevel=3 nvme_load=yes zswap.enabled=0 fbcon=nodefer nowatchdog"

// Hyper-V guest video cmdline fragment
const HyperVVideoCmdline = "video=hyperv_fb:3840x2160"

// Default directory and file modes
const (
	DirPerm     = os.ModeDir | os.ModePerm
	FilePerm    = 0666
	PrivKeyPerm = 0400
)

// Hypervisor buckets returned by systemd-detect-virt
const (
	VirtOracle     = "oracle"
	VirtVMware     = "vmware"
	VirtQEMU       = "qemu"
	VirtKVM        = "kvm"
	VirtMicrosoft  = "microsoft"
	VirtNone       = "none"
)

// CPU vendors as reported by lscpu's "Vendor ID:" line
const (
	CPUVendorIntel = "GenuineIntel"
	CPUVendorAMD   = "AuthenticAMD"
)

// Package-staging backends
const (
	BackendPacstrap = "pacstrap"
	BackendPacman   = "pacman"
	BackendDnf      = "dnf"
	BackendNix      = "nix"
)

// DNF install modes
const (
	DnfInstall = "install"
	DnfRemove  = "remove"
)

// Paste-upload service used by the (out-of-core) TUI collaborator
const (
	InstallLogPath  = "/tmp/aegis.log"
	PasteHost       = "termbin.com:9999"
)

// GetCloudInitPaths returns the directories scanned for cloud-init-style
// configuration fragments on the target root.
func GetCloudInitPaths() []string {
	return []string{"/system/oem", "/oem/", "/usr/local/cloud-config/"}
}
