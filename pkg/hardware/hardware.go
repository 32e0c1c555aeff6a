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

// Package hardware implements the HardwareProbe: CPU/GPU/hypervisor
// detection that emits (packages, services, file edits) triples for the
// caller to apply, rather than reaching into PackageStager or FileOps
// itself.
package hardware

import (
	"fmt"
	"strings"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/jaypipes/ghw"
	"github.com/pkg/errors"
)

// Edit is one pending in-place substitution a caller should apply via
// FileOps.SedFile against a file on the target root.
type Edit struct {
	Path    string
	Find    string
	Replace string
}

// Result bundles what a probe wants done: packages to add to the base
// package set, services to enable, and file edits to apply.
type Result struct {
	Packages []string
	Services []string
	Edits    []Edit
}

func (r *Result) addPackages(pkgs ...string) { r.Packages = append(r.Packages, pkgs...) }
func (r *Result) addServices(svcs ...string)  { r.Services = append(r.Services, svcs...) }

// Probe runs hardware detection commands on the host.
type Probe struct {
	runner types.Runner
	log    types.Logger
}

// New builds a Probe.
func New(runner types.Runner, log types.Logger) *Probe {
	return &Probe{runner: runner, log: log}
}

// mkinitcpioPath and grubDefaultPath are chroot-relative paths, expressed
// here as absolute target-root paths so the caller can pass them straight
// to FileOps without knowing HardwareProbe's internals.
var (
	mkinitcpioPath = constants.TargetRoot + constants.MkinitcpioConf
	grubDefaultPath = constants.TargetRoot + "/etc/default/grub"
)

// DetectCPU parses lscpu's "Vendor ID:" line and returns the microcode
// package for the detected vendor.
func (p *Probe) DetectCPU() (Result, error) {
	vendor, err := p.cpuVendor()
	if err != nil {
		return Result{}, err
	}

	var r Result
	switch vendor {
	case constants.CPUVendorIntel:
		p.log.Info("Intel CPU detected.")
		r.addPackages("intel-ucode", "intel-compute-runtime")
	case constants.CPUVendorAMD:
		p.log.Info("AMD CPU detected.")
		r.addPackages("amd-ucode")
	default:
		p.log.Warnf("unrecognized CPU vendor %q", vendor)
	}
	return r, nil
}

// MicrocodeImage returns the initramfs-relative microcode image BootAssembler
// should prepend to a UKI's initrd chain for the detected CPU vendor, or ""
// when none applies.
func (p *Probe) MicrocodeImage() string {
	vendor, err := p.cpuVendor()
	if err != nil {
		return ""
	}
	switch vendor {
	case constants.CPUVendorIntel:
		return "/boot/intel-ucode.img"
	case constants.CPUVendorAMD:
		return "/boot/amd-ucode.img"
	default:
		return ""
	}
}

func (p *Probe) cpuVendor() (string, error) {
	result, err := p.runner.Exec("lscpu")
	if err != nil {
		return "", errors.Wrap(err, "run lscpu")
	}
	if !result.Success() {
		return "", errors.Errorf("lscpu exited %d: %s", result.ExitCode, result.Stderr)
	}
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.HasPrefix(line, "Vendor ID:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1]), nil
			}
		}
	}
	// Cross-check against ghw when lscpu's well-known line is absent, e.g.
	// inside minimal containers used for testing.
	if info, ghwErr := ghw.CPU(); ghwErr == nil && len(info.Processors) > 0 {
		return info.Processors[0].Vendor, nil
	}
	return "", errors.New("Vendor ID not found in lscpu output")
}

// nvidiaFamilies maps chip codenames to the driver family the kernel
// flavor should use, per the Arch wiki's NVIDIA compatibility table.
var nvidiaFamilies = []struct {
	chips []string
	name  string
}{
	{[]string{"GM107", "GM108", "GM200", "GM204", "GM206", "GM20B"}, "maxwell"},
	{[]string{"TU102", "TU104", "TU106", "TU116", "TU117"}, "turing"},
	{[]string{"GK104", "GK107", "GK106", "GK110", "GK110B", "GK208B", "GK208", "GK20A", "GK210"}, "kepler"},
	{[]string{"GF100", "GF108", "GF106", "GF104", "GF110", "GF114", "GF116", "GF117", "GF119"}, "fermi"},
	{[]string{"G80", "G84", "G86", "G92", "G94", "G96", "G98", "GT200", "GT215", "GT216", "GT218", "MCP77", "MCP78", "MCP79", "MCP7A", "MCP89"}, "tesla"},
}

// DetectGPU runs `lspci -k` and matches vendor/chip substrings to select
// driver packages, mkinitcpio MODULES additions, and the kernel cmdline
// flag for the given kernel flavor.
func (p *Probe) DetectGPU(kernel string) (Result, error) {
	result, err := p.runner.Exec("lspci", "-k")
	if err != nil {
		return Result{}, errors.Wrap(err, "run lspci -k")
	}
	if !result.Success() {
		return Result{}, errors.Errorf("lspci -k exited %d: %s", result.ExitCode, result.Stderr)
	}
	out := result.Stdout

	var r Result
	found := false

	if strings.Contains(out, "AMD") {
		p.log.Info("AMD GPU detected.")
		r.addPackages("xf86-video-amdgpu", "opencl-amd")
		found = true
	}
	if strings.Contains(out, "ATI") && !strings.Contains(out, "AMD") {
		p.log.Info("ATI GPU detected.")
		r.addPackages("opencl-mesa")
		found = true
	}

	if strings.Contains(out, "NVIDIA") {
		p.log.Info("NVIDIA GPU detected.")
		found = true

		family := ""
		for _, f := range nvidiaFamilies {
			for _, chip := range f.chips {
				if strings.Contains(out, chip) {
					family = f.name
					break
				}
			}
			if family != "" {
				break
			}
		}

		switch family {
		case "maxwell":
			switch kernel {
			case "linux":
				r.addPackages("nvidia")
			case "linux-lts":
				r.addPackages("nvidia-lts")
			default:
				r.addPackages("nvidia-dkms")
			}
			r.addPackages("nvidia-settings")
		case "turing":
			if kernel == "linux" {
				r.addPackages("nvidia-open")
			} else {
				r.addPackages("nvidia-open-dkms")
			}
			r.addPackages("nvidia-settings")
		case "kepler":
			r.addPackages("nvidia-470xx-dkms", "nvidia-470xx-settings")
		case "fermi":
			r.addPackages("nvidia-390xx-dkms", "nvidia-390xx-settings")
		case "tesla":
			r.addPackages("nvidia-340xx-dkms", "nvidia-340xx-settings")
		default:
			r.addPackages("nvidia-open-dkms", "nvidia-settings")
		}

		r.addPackages("opencl-nvidia", "gwe", "nvtop")
		r.Edits = append(r.Edits,
			Edit{mkinitcpioPath, `(?m)^(MODULES.*)"$`, `${1} nvidia nvidia_modeset nvidia_uvm nvidia_drm"`},
			Edit{grubDefaultPath, `(?m)^(GRUB_CMDLINE_LINUX_DEFAULT.*)"$`, `${1} nvidia-drm.modeset=1"`},
		)

		if strings.Contains(out, "Intel") || strings.Contains(out, "AMD") || strings.Contains(out, "ATI") {
			r.addPackages("envycontrol", "nvidia-exec")
		}
	}

	if !found {
		p.log.Debug("no discrete GPU vendor recognized in lspci output")
	}
	return r, nil
}

// DetectVirt buckets the host under systemd-detect-virt and emits the
// matching guest-integration packages, services, and file edits.
func (p *Probe) DetectVirt() (Result, error) {
	result, err := p.runner.Exec("systemd-detect-virt")
	if err != nil {
		return Result{}, errors.Wrap(err, "run systemd-detect-virt")
	}
	virt := strings.TrimSpace(result.Stdout)

	var r Result
	switch virt {
	case constants.VirtOracle:
		r.addPackages("virtualbox-guest-utils")
		r.addServices("vboxservice")
	case constants.VirtVMware:
		r.addPackages("open-vm-tools", "xf86-video-vmware")
		r.addServices("vmtoolsd", "vmware-vmblock-fuse", "mnt-hgfs.mount")
		r.Edits = append(r.Edits, Edit{
			mkinitcpioPath,
			`(?m)^(MODULES.*)"$`,
			`${1} vsock vmw_vsock_vmci_transport vmw_balloon vmw_vmci vmwgfx"`,
		})
	case constants.VirtQEMU, constants.VirtKVM:
		r.addPackages("qemu-guest-agent")
		r.addServices("qemu-guest-agent")
	case constants.VirtMicrosoft:
		r.addPackages("hyperv", "xf86-video-fbdev")
		r.addServices("hv_fcopy_daemon", "hv_kvp_daemon", "hv_vss_daemon")
		r.Edits = append(r.Edits, Edit{
			grubDefaultPath,
			`(?m)^(GRUB_CMDLINE_LINUX_DEFAULT.*)"$`,
			fmt.Sprintf(`${1} %s"`, constants.HyperVVideoCmdline),
		})
	case constants.VirtNone:
		p.log.Debug("no hypervisor detected")
	default:
		p.log.Debugf("unrecognized systemd-detect-virt bucket %q", virt)
	}
	return r, nil
}

// IsHyperV reports whether DetectVirt would bucket the host as a Hyper-V
// guest, for BootAssembler's guest-video cmdline flag.
func (p *Probe) IsHyperV() (bool, error) {
	result, err := p.runner.Exec("systemd-detect-virt")
	if err != nil {
		return false, errors.Wrap(err, "run systemd-detect-virt")
	}
	return strings.TrimSpace(result.Stdout) == constants.VirtMicrosoft, nil
}
