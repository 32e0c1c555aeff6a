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

// Package packagestager implements PackageStager: materializing the base
// system and subsequent package additions through one of four backends
// selected by the installer's configured base distribution.
package packagestager

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/pkg/errors"
)

// Backend identifies which package manager a Stage call drives.
type Backend string

const (
	Pacstrap Backend = constants.BackendPacstrap
	Pacman   Backend = constants.BackendPacman
	Dnf      Backend = constants.BackendDnf
	Nix      Backend = constants.BackendNix
)

// BackendFor maps an InstallerConfig base to the backend used for its
// initial base-system materialization.
func BackendFor(base string) Backend {
	switch base {
	case constants.AthenaFedora:
		return Dnf
	case constants.AthenaNix:
		return Nix
	default:
		return Pacstrap
	}
}

// Stager installs package sets via external package-manager invocations,
// streaming their stdout/stderr into the structured log as they run.
type Stager struct {
	log   types.Logger
	files *fileops.FileOps
}

// New builds a Stager. files is used only by the Nix backend, to stage
// configuration.nix ahead of nixos-install.
func New(log types.Logger, files *fileops.FileOps) *Stager {
	return &Stager{log: log, files: files}
}

// Stage installs pkgs using backend. For Dnf, mode selects between
// constants.DnfInstall and constants.DnfRemove. nixSettings is consulted
// only for the Nix backend: it patches configuration.nix's desktop/display
// manager/theme keys before nixos-install runs; callers targeting other
// backends may pass nil.
func (s *Stager) Stage(ctx context.Context, backend Backend, mode string, pkgs []string, nixSettings map[string]string) error {
	if len(pkgs) == 0 && backend != Nix {
		s.log.Debug("package set empty, nothing to stage")
		return nil
	}

	var program string
	var args []string

	switch backend {
	case Pacstrap:
		program = "pacstrap"
		args = append([]string{constants.TargetRoot}, pkgs...)
	case Pacman:
		program = "chroot"
		args = append([]string{constants.TargetRoot, "pacman", "-S", "--noconfirm", "--needed"}, pkgs...)
	case Dnf:
		if mode == "" {
			mode = constants.DnfInstall
		}
		program = "dnf"
		args = append([]string{"-y", "--installroot=" + constants.TargetRoot, mode}, pkgs...)
	case Nix:
		if err := s.stageNixConfig(nixSettings); err != nil {
			return err
		}
		program = "nixos-install"
		args = []string{"--root", constants.TargetRoot}
	default:
		return errors.Errorf("unknown package backend %q", backend)
	}

	return s.run(ctx, program, args...)
}

// nixConfigPath is where NixOS expects its generated system configuration,
// relative to the target root nixos-install operates against.
const nixConfigPath = constants.TargetRoot + "/etc/nixos/configuration.nix"

// nixConfigTemplate is the minimal configuration.nix nixos-install needs to
// produce a bootable Athena Nix system; stageNixConfig patches the
// desktop/display-manager/theme keys onto it from nixSettings before
// nixos-install runs. Keys left unset by the caller keep their default
// (disabled) value.
const nixConfigTemplate = `{ config, pkgs, ... }:

{
  imports = [ ./hardware-configuration.nix ];

  desktop = "none";
  dmanager = "none";
  sddmtheme = "";

  system.stateVersion = "24.05";
}
`

// stageNixConfig writes nixConfigTemplate and sed-patches it with
// nixSettings' desktop/dmanager/sddmtheme values, grounded on the original
// installer's per-choice Nix-fragment edits. A nil or empty map leaves the
// template's disabled defaults in place.
func (s *Stager) stageNixConfig(nixSettings map[string]string) error {
	if err := s.files.CreateDirectory(constants.TargetRoot + "/etc/nixos"); err != nil {
		return err
	}
	if err := s.files.WriteFile(nixConfigPath, []byte(nixConfigTemplate), 0644); err != nil {
		return err
	}

	for _, key := range []string{"desktop", "dmanager", "sddmtheme"} {
		value, ok := nixSettings[key]
		if !ok || value == "" {
			continue
		}
		find := `(?m)^  ` + key + ` = ".*";$`
		replace := `  ` + key + ` = "` + value + `";`
		if err := s.files.SedFile(nixConfigPath, find, replace); err != nil {
			return err
		}
	}
	return nil
}

// run execs program with args, forwarding stdout and stderr line-by-line
// into the structured log from two dedicated goroutines so the caller can
// block on Wait() without deadlocking on full pipe buffers.
func (s *Stager) run(ctx context.Context, program string, args ...string) error {
	cmd := exec.CommandContext(ctx, program, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrapf(err, "open stdout pipe for %s", program)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrapf(err, "open stderr pipe for %s", program)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", program)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go s.drain(&wg, stdout, s.log.Info)
	go s.drain(&wg, stderr, s.log.Warn)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &types.ExitError{Code: exitErr.ExitCode(), Err: errors.Errorf("%s exited %d", program, exitErr.ExitCode())}
		}
		return errors.Wrapf(err, "wait for %s", program)
	}
	return nil
}

func (s *Stager) drain(wg *sync.WaitGroup, pipe io.Reader, sink func(args ...interface{})) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		sink(scanner.Text())
	}
}
