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

// Package execrunner wraps external command invocation behind a single
// error-propagation convention, so every other component funnels privileged
// or external calls through one place.
package execrunner

import (
	"bytes"
	"os/exec"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/pkg/errors"
)

// ChrootBinary is the binary used to enter the target root for exec_chroot.
const ChrootBinary = "chroot"

type runner struct{}

// New returns a types.Runner backed by os/exec.
func New() types.Runner {
	return &runner{}
}

func run(cmd *exec.Cmd, program string, args []string) (types.CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := types.CommandResult{
		Program: program,
		Args:    args,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if runErr != nil {
		return result, errors.Wrapf(runErr, "exec %s", program)
	}
	result.ExitCode = 0
	return result, nil
}

func (r *runner) Exec(program string, args ...string) (types.CommandResult, error) {
	return run(exec.Command(program, args...), program, args)
}

func (r *runner) ExecInWorkdir(program, cwd string, args ...string) (types.CommandResult, error) {
	cmd := exec.Command(program, args...)
	cmd.Dir = cwd
	return run(cmd, program, args)
}

func (r *runner) ExecChroot(program string, args ...string) (types.CommandResult, error) {
	chrootArgs := append([]string{constants.TargetRoot, program}, args...)
	return run(exec.Command(ChrootBinary, chrootArgs...), program, args)
}

func (r *runner) ExecOutput(program string, args ...string) (types.CommandResult, error) {
	return r.Exec(program, args...)
}

// Eval logs the described step and turns a non-zero exit (or transport
// error) into a fatal error carrying the captured stderr, mirroring
// exec_eval in the spec. The non-consuming variant is EvalResult.
func Eval(log types.Logger, result types.CommandResult, err error, description string) error {
	if err != nil {
		log.Errorf("%s: %v", description, err)
		return err
	}
	if !result.Success() {
		log.Errorf("%s: exit %d: %s", description, result.ExitCode, result.Stderr)
		wrapped := errors.Errorf("%s: exit %d: %s", description, result.ExitCode, result.Stderr)
		return &types.ExitError{Code: result.ExitCode, Err: wrapped}
	}
	log.Debugf("%s: ok", description)
	return nil
}

// EvalResult behaves like Eval but returns the captured stdout instead of
// discarding it, for callers that need the command's output rather than
// just its success.
func EvalResult(log types.Logger, result types.CommandResult, err error, description string) (string, error) {
	if evalErr := Eval(log, result, err, description); evalErr != nil {
		return "", evalErr
	}
	return result.Stdout, nil
}
