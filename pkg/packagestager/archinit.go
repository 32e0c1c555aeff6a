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

package packagestager

import (
	"context"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/execrunner"
	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/cavaliergopher/grab/v3"
	"github.com/cenkalti/backoff/v4"
)

// mirrorRankTargets are the repositories rate-mirrors refreshes before a
// Pacstrap run, in the order the original installer ranked them.
var mirrorRankTargets = []string{"arch", "blackarch", "chaotic-aur"}

// fallbackMirrorlistURL is used when the rate-mirrors binary isn't on the
// host; it ranks nothing but still yields a usable, fresh mirrorlist,
// which is the "optional mirror ranking" carve-out in the non-goals.
const fallbackMirrorlistURL = "https://archlinux.org/mirrorlist/all/"

// InitArchKeyring resets and repopulates the pacman keyring on the host,
// retrying each step with exponential backoff since pacman-key occasionally
// fails transiently against a cold gpg-agent.
func InitArchKeyring(ctx context.Context, runner types.Runner, log types.Logger, fs types.FS) error {
	if err := fs.RemoveAll(constants.PacmanGnupgDir); err != nil {
		return err
	}

	steps := []struct {
		description string
		args        []string
	}{
		{"initialize pacman keyring", []string{"--init"}},
		{"populate pacman keyring", []string{"--populate"}},
	}

	for _, step := range steps {
		step := step
		op := func() error {
			result, err := runner.Exec("pacman-key", step.args...)
			return execrunner.Eval(log, result, err, step.description)
		}
		if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
			return err
		}
	}
	return nil
}

// RefreshMirrors runs rate-mirrors against each configured repository,
// retrying transient network failures. When rate-mirrors is unavailable it
// falls back to downloading the canonical ranked-by-country mirrorlist.
func RefreshMirrors(ctx context.Context, runner types.Runner, log types.Logger) error {
	if result, err := runner.Exec("which", "rate-mirrors"); err != nil || !result.Success() {
		return downloadFallbackMirrorlist(ctx, log)
	}

	for _, target := range mirrorRankTargets {
		target := target
		op := func() error {
			result, err := runner.Exec("rate-mirrors", target)
			return execrunner.Eval(log, result, err, "rank "+target+" mirrors")
		}
		if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
			log.Warnf("rate-mirrors failed for %s, falling back to static mirrorlist: %v", target, err)
		}
	}
	return nil
}

func downloadFallbackMirrorlist(_ context.Context, log types.Logger) error {
	resp, err := grab.Get(constants.TargetRoot+"/etc/pacman.d/mirrorlist", fallbackMirrorlistURL)
	if err != nil {
		log.Warnf("download fallback mirrorlist: %v", err)
		return nil
	}
	log.Infof("downloaded fallback mirrorlist to %s", resp.Filename)
	return nil
}

// CopyPacmanConfig copies the host's pacman.conf and mirrorlists into the
// target root after Pacstrap, so the chrooted pacman calls that follow
// (keyring init, package installs run via ExecChroot) resolve the same
// repos and mirrors the host used rather than Pacstrap's bundled defaults.
// blackarch/chaotic mirrorlists are skipped, not fatal, when the host image
// doesn't carry those optional repos.
func CopyPacmanConfig(files *fileops.FileOps, fs types.FS, log types.Logger) error {
	if err := files.CopyFile(constants.PacmanConf, constants.TargetRoot+constants.PacmanConf); err != nil {
		return err
	}

	for _, name := range constants.PacmanMirrorlists {
		src := constants.PacmanMirrorlistDir + "/" + name
		if _, err := fs.Stat(src); err != nil {
			log.Debugf("skip %s: not present on host", src)
			continue
		}
		dst := constants.TargetRoot + constants.PacmanMirrorlistDir + "/" + name
		if err := files.CopyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}
