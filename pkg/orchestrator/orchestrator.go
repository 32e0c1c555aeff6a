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

// Package orchestrator implements the top-level installer sequencing:
// ingest, package set selection, partition, package install, system
// configuration, bootloader assembly, service enablement, and teardown.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/athena-os/aegis-installer/pkg/bootassembler"
	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/desktopconfig"
	"github.com/athena-os/aegis-installer/pkg/execrunner"
	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/athena-os/aegis-installer/pkg/hardware"
	"github.com/athena-os/aegis-installer/pkg/luks"
	"github.com/athena-os/aegis-installer/pkg/packagestager"
	"github.com/athena-os/aegis-installer/pkg/partitioner"
	"github.com/athena-os/aegis-installer/pkg/shellconfig"
	"github.com/athena-os/aegis-installer/pkg/types"
)

// Orchestrator drives a single-pass, linear installation.
type Orchestrator struct {
	cfg     *types.InstallerConfig
	runner  types.Runner
	fs      types.FS
	mnt     types.Mounter
	log     types.Logger
	logPath string

	files   *fileops.FileOps
	planner *partitioner.Planner
	hw      *hardware.Probe
	luksMgr *luks.Manager
	stager  *packagestager.Stager
}

// New wires up an Orchestrator's component collaborators over a single
// installer config. logPath is the installer's own log file, copied onto
// the target root as the copy_log stage's final act.
func New(cfg *types.InstallerConfig, runner types.Runner, fs types.FS, mnt types.Mounter, log types.Logger, logPath string) *Orchestrator {
	files := fileops.New(fs, log)
	return &Orchestrator{
		cfg:     cfg,
		runner:  runner,
		fs:      fs,
		mnt:     mnt,
		log:     log,
		logPath: logPath,
		files:   files,
		planner: partitioner.New(runner, mnt, files, log),
		hw:      hardware.New(runner, log),
		luksMgr: luks.New(runner),
		stager:  packagestager.New(log, files),
	}
}

// Run executes the full install sequence and returns the first error
// encountered, after best-effort cleanup (unmount, LUKS close) has run.
func (o *Orchestrator) Run(ctx context.Context) error {
	var cleanup cleanStack

	err := o.runStages(ctx, &cleanup)
	return cleanup.run(err)
}

func (o *Orchestrator) runStages(ctx context.Context, cleanup *cleanStack) error {
	efi := o.cfg.Partition.Content.TableType == constants.GPT
	backend := packagestager.BackendFor(o.cfg.Base)
	onNix := backend == packagestager.Nix

	o.log.Infof("installing base %s via %s", o.cfg.Base, backend)

	packages, services, edits, nixSettings, err := o.buildPackageSet(onNix)
	if err != nil {
		return err
	}

	if err := o.partition(cleanup); err != nil {
		return err
	}

	if err := o.installPackages(ctx, backend, packages, nixSettings); err != nil {
		return err
	}

	if err := o.genFstab(); err != nil {
		return err
	}

	if err := o.writeLocale(); err != nil {
		return err
	}

	if err := o.writeHostname(); err != nil {
		return err
	}
	if err := o.writeHosts(); err != nil {
		return err
	}

	if err := o.desktopConfig(); err != nil {
		return err
	}
	if err := o.designConfig(); err != nil {
		return err
	}
	if err := o.dmConfig(); err != nil {
		return err
	}
	if err := o.shellConfig(); err != nil {
		return err
	}

	if err := o.configureZram(); err != nil {
		return err
	}

	if err := o.hw.WriteBaseMkinitcpioConf(o.files); err != nil {
		return err
	}
	if err := o.applyHardwareEdits(edits); err != nil {
		return err
	}

	if err := o.hw.ConfigureBuildParallelism(o.files); err != nil {
		return err
	}

	if err := o.enableServices(services); err != nil {
		return err
	}

	if err := o.createUsers(); err != nil {
		return err
	}

	if efi {
		if err := o.assembleBoot(); err != nil {
			return err
		}
	}

	return o.copyLog()
}

// copyLog copies the installer's own log file onto the target root for
// post-install diagnostics, mirroring the copy_log stage. A missing or
// unreadable log file is logged but not fatal, since the install itself
// has already succeeded by this point.
func (o *Orchestrator) copyLog() error {
	if o.logPath == "" {
		return nil
	}
	src, err := os.Open(o.logPath)
	if err != nil {
		o.log.Warnf("copy_log: %v", err)
		return nil
	}
	defer src.Close()

	if err := o.CopyLog(src); err != nil {
		o.log.Warnf("copy_log: %v", err)
	}
	return nil
}

func (o *Orchestrator) partition(cleanup *cleanStack) error {
	if err := o.planner.Plan(o.cfg); err != nil {
		return err
	}
	for _, d := range o.cfg.Partition.Content.Partitions {
		if !d.HasFlag(constants.FlagEncrypt) {
			continue
		}
		label := strings.TrimPrefix(d.BlockDevice, "/dev/") + "crypted"
		cleanup.push(func() error { return o.planner.CloseLUKS(label) })
	}
	// Pushed last so the LIFO cleanup unmounts before closing any LUKS container.
	cleanup.push(func() error { return o.planner.UnmountAll() })
	return nil
}

// buildPackageSet assembles the full package/service/edit/nix-setting list
// the install needs, merging hardware-probe results with the desktop,
// display manager, and design choices' own package sets.
func (o *Orchestrator) buildPackageSet(onNix bool) (packages, services []string, edits []hardware.Edit, nixSettings map[string]string, err error) {
	cpu, err := o.hw.DetectCPU()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	gpu, err := o.hw.DetectGPU(o.cfg.Kernel)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	virt, err := o.hw.DetectVirt()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	if luks.TPM2Available() {
		cpu.Packages = append(cpu.Packages, "tpm2-tools")
	}

	packages = append(packages, cpu.Packages...)
	packages = append(packages, gpu.Packages...)
	packages = append(packages, virt.Packages...)
	services = append(services, gpu.Services...)
	services = append(services, virt.Services...)
	edits = append(edits, gpu.Edits...)
	edits = append(edits, virt.Edits...)

	desktopSet := desktopconfig.Build(o.cfg, onNix)
	packages = append(packages, desktopSet.Packages...)
	services = append(services, desktopSet.Services...)
	nixSettings = desktopSet.NixSettings

	if len(o.cfg.Users) > 0 {
		packages = append(packages, shellconfig.Packages(o.cfg.Users[0].Shell)...)
	}

	return packages, services, edits, nixSettings, nil
}

func (o *Orchestrator) installPackages(ctx context.Context, backend packagestager.Backend, extraDetected []string, nixSettings map[string]string) error {
	pkgs := append([]string(nil), o.cfg.ExtraPackages...)
	pkgs = append(pkgs, extraDetected...)

	if backend == packagestager.Pacstrap {
		if err := packagestager.InitArchKeyring(ctx, o.runner, o.log, o.fs); err != nil {
			return err
		}
		if err := packagestager.RefreshMirrors(ctx, o.runner, o.log); err != nil {
			return err
		}
	}

	if err := o.stager.Stage(ctx, backend, constants.DnfInstall, pkgs, nixSettings); err != nil {
		return err
	}

	if backend == packagestager.Pacstrap {
		if err := packagestager.CopyPacmanConfig(o.files, o.fs, o.log); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) genFstab() error {
	result, err := o.runner.Exec("genfstab", "-U", constants.TargetRoot)
	if err != nil {
		return err
	}
	if !result.Success() {
		return fmt.Errorf("genfstab exited %d: %s", result.ExitCode, result.Stderr)
	}
	return o.files.AppendFile(constants.TargetRoot+constants.FstabPath, result.Stdout)
}

func (o *Orchestrator) writeHostname() error {
	if err := o.files.WriteFile(constants.TargetRoot+"/etc/hostname", []byte(o.cfg.Hostname+"\n"), constants.FilePerm); err != nil {
		return err
	}
	return o.files.WriteFile(
		constants.TargetRoot+constants.NsswitchConf,
		[]byte("hosts: mymachines resolve [!UNAVAIL=return] files dns mdns wins myhostname\n"),
		constants.FilePerm,
	)
}

func (o *Orchestrator) writeHosts() error {
	content := fmt.Sprintf(
		"127.0.0.1\tlocalhost\n::1\t\tlocalhost\n127.0.1.1\t%s.localdomain\t%s\n",
		o.cfg.Hostname, o.cfg.Hostname,
	)
	return o.files.WriteFile(constants.TargetRoot+"/etc/hosts", []byte(content), constants.FilePerm)
}

func (o *Orchestrator) configureZram() error {
	return o.files.WriteFile(
		constants.TargetRoot+constants.ZramConf,
		[]byte("[zram0]\nzram-size = ram / 2\ncompression-algorithm = zstd\nswap-priority = 100\nfs-type = swap\n"),
		constants.FilePerm,
	)
}

// defaultLocale is used whenever cfg.Locale is empty, matching set_locale's
// own "en_US.UTF-8" fallback. It always seeds locale.conf's LANG= line; being
// a single field with no charset, it adds no entry to locale.gen.
const defaultLocale = "en_US.UTF-8"

// writeLocale drives the locale/keyboard/timezone trio the way
// set_locale/set_keyboard/set_timezone do: create the config files on the
// target root, then ask the chrooted system to regenerate from them.
func (o *Orchestrator) writeLocale() error {
	if err := o.setLocale(); err != nil {
		return err
	}
	if err := o.setKeyboard(); err != nil {
		return err
	}
	return o.setTimezone()
}

func (o *Orchestrator) setLocale() error {
	locale := o.cfg.Locale
	if locale == "" {
		locale = defaultLocale
	}

	path := constants.TargetRoot + "/etc/locale.conf"
	if err := o.files.CreateFile(path); err != nil {
		return err
	}
	if err := o.files.AppendFile(path, "LANG="+defaultLocale); err != nil {
		return err
	}

	genPath := constants.TargetRoot + "/etc/locale.gen"
	fields := strings.Fields(locale)
	for i := 0; i+1 < len(fields); i += 2 {
		if err := o.files.AppendFile(genPath, fields[i]+" "+fields[i+1]); err != nil {
			return err
		}
	}

	if locale != defaultLocale {
		if err := o.files.SedFile(path, defaultLocale, locale); err != nil {
			return err
		}
	}

	result, err := o.runner.ExecChroot("locale-gen")
	return execrunner.Eval(o.log, result, err, "locale-gen")
}

func (o *Orchestrator) setKeyboard() error {
	if o.cfg.Keyboard == "" {
		return nil
	}
	path := constants.TargetRoot + "/etc/vconsole.conf"
	if err := o.files.CreateFile(path); err != nil {
		return err
	}

	result, err := o.runner.ExecChroot("localectl", "set-keymap", o.cfg.Keyboard)
	if err := execrunner.Eval(o.log, result, err, "set-keymap "+o.cfg.Keyboard); err != nil {
		return err
	}
	return o.files.AppendFile(path, "FONT=ter-v24n")
}

func (o *Orchestrator) setTimezone() error {
	if o.cfg.Timezone == "" {
		return nil
	}
	result, err := o.runner.ExecChroot("ln", "-sf", "/usr/share/zoneinfo/"+o.cfg.Timezone, "/etc/localtime")
	if err := execrunner.Eval(o.log, result, err, "link timezone "+o.cfg.Timezone); err != nil {
		return err
	}
	result, err = o.runner.ExecChroot("hwclock", "--systohc")
	return execrunner.Eval(o.log, result, err, "sync hardware clock")
}

func (o *Orchestrator) desktopConfig() error {
	return desktopconfig.ApplyDesktopConfig(o.files, o.cfg.Desktop)
}

func (o *Orchestrator) designConfig() error {
	return desktopconfig.ApplyDesignConfig(o.files, o.cfg)
}

func (o *Orchestrator) dmConfig() error {
	return desktopconfig.ApplyDMConfig(o.files, o.cfg)
}

func (o *Orchestrator) shellConfig() error {
	if len(o.cfg.Users) == 0 {
		return nil
	}
	return shellconfig.Apply(o.files, o.cfg.Users[0].Shell)
}

func (o *Orchestrator) applyHardwareEdits(edits []hardware.Edit) error {
	for _, e := range edits {
		if err := o.files.SedFile(e.Path, e.Find, e.Replace); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) enableServices(services []string) error {
	for _, svc := range services {
		result, err := o.runner.ExecChroot("systemctl", "enable", svc)
		if err := execrunner.Eval(o.log, result, err, "enable service "+svc); err != nil {
			return err
		}
	}
	return nil
}

// createUsers' accounts all get /bin/bash as their real login shell
// regardless of the user's preferred-shell choice: that preference only
// ever surfaces through shellConfig's package install and /etc/profile.d
// export, never through useradd's own -s flag.
func (o *Orchestrator) createUsers() error {
	for _, u := range o.cfg.Users {
		args := []string{"-m", "-G", strings.Join(u.Groups, ","), "-s", "/bin/bash", u.Name}
		result, err := o.runner.ExecChroot("useradd", args...)
		if err := execrunner.Eval(o.log, result, err, "create user "+u.Name); err != nil {
			return err
		}

		passResult, err := o.runner.ExecChroot("usermod", "-p", u.PasswordHash, u.Name)
		if err := execrunner.Eval(o.log, passResult, err, "set password hash for "+u.Name); err != nil {
			return err
		}
	}

	if o.cfg.RootPasswdHash != "" {
		result, err := o.runner.ExecChroot("usermod", "-p", o.cfg.RootPasswdHash, "root")
		if err := execrunner.Eval(o.log, result, err, "set root password hash"); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) assembleBoot() error {
	espPath := constants.TargetRoot + "/boot/efi"
	assembler := bootassembler.New(o.runner, o.files, o.log, espPath)

	partitions, _, err := o.luksMgr.FindLUKSPartitions()
	if err != nil {
		return err
	}

	rootIsBtrfs := false
	rootUUID := ""
	for _, d := range o.cfg.Partition.Content.Partitions {
		if d.MountPoint == "/" {
			rootIsBtrfs = d.Filesystem == constants.FSBtrfs
		}
	}
	if len(partitions) == 0 {
		result, err := o.runner.Exec("blkid", "-s", "UUID", "-o", "value", rootBlockDevice(o.cfg))
		if err == nil && result.Success() {
			rootUUID = strings.TrimSpace(result.Stdout)
		}
	}

	hyperV, err := o.hw.IsHyperV()
	if err != nil {
		return err
	}

	cmdline := bootassembler.BuildCmdline(partitions, rootUUID, rootIsBtrfs, hyperV)
	if err := o.files.WriteFile(constants.TargetRoot+constants.KernelCmdline, []byte(cmdline+"\n"), constants.FilePerm); err != nil {
		return err
	}

	return assembler.Assemble(cmdline, o.hw.MicrocodeImage())
}

func rootBlockDevice(cfg *types.InstallerConfig) string {
	for _, d := range cfg.Partition.Content.Partitions {
		if d.MountPoint == "/" {
			return d.BlockDevice
		}
	}
	return ""
}

// CopyLog copies the installer's own log file to the target root for
// post-install diagnostics, mirroring the copy_log stage.
func (o *Orchestrator) CopyLog(src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	return o.files.WriteFile(constants.TargetRoot+"/var/log/aegis-install.log", data, constants.FilePerm)
}
