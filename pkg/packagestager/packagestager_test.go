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

package packagestager_test

import (
	"context"
	"io"
	"testing"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/athena-os/aegis-installer/pkg/packagestager"
	"github.com/athena-os/aegis-installer/pkg/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
)

func TestPackagestager(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "packagestager Suite")
}

var _ = Describe("BackendFor", func() {
	It("selects dnf for the Fedora base", func() {
		Expect(packagestager.BackendFor(constants.AthenaFedora)).To(Equal(packagestager.Dnf))
	})

	It("selects nix for the Nix base", func() {
		Expect(packagestager.BackendFor(constants.AthenaNix)).To(Equal(packagestager.Nix))
	})

	It("defaults every other base to pacstrap", func() {
		Expect(packagestager.BackendFor(constants.AthenaArch)).To(Equal(packagestager.Pacstrap))
	})
})

var _ = Describe("Stager.Stage", func() {
	newStager := func() *packagestager.Stager {
		files := fileops.New(afero.NewMemMapFs(), types.NewLogger(io.Discard))
		return packagestager.New(types.NewLogger(io.Discard), files)
	}

	It("skips running anything for an empty package set", func() {
		s := newStager()
		Expect(s.Stage(context.Background(), packagestager.Pacstrap, "", nil, nil)).To(Succeed())
	})

	It("rejects an unknown backend", func() {
		s := newStager()
		err := s.Stage(context.Background(), packagestager.Backend("rpm-ostree"), "", []string{"base"}, nil)
		Expect(err).To(MatchError(ContainSubstring("unknown package backend")))
	})
})

var _ = Describe("CopyPacmanConfig", func() {
	It("copies pacman.conf and only the mirrorlists present on the host", func() {
		fs := afero.NewMemMapFs()
		Expect(afero.WriteFile(fs, constants.PacmanConf, []byte("[options]\n"), 0644)).To(Succeed())
		Expect(fs.MkdirAll(constants.PacmanMirrorlistDir, 0755)).To(Succeed())
		Expect(afero.WriteFile(fs, constants.PacmanMirrorlistDir+"/mirrorlist", []byte("Server = https://example/$repo\n"), 0644)).To(Succeed())
		Expect(fs.MkdirAll(constants.TargetRoot+"/etc/pacman.d", 0755)).To(Succeed())

		files := fileops.New(fs, types.NewLogger(io.Discard))
		log := types.NewLogger(io.Discard)

		Expect(packagestager.CopyPacmanConfig(files, fs, log)).To(Succeed())

		_, err := fs.Stat(constants.TargetRoot + constants.PacmanConf)
		Expect(err).NotTo(HaveOccurred())
		_, err = fs.Stat(constants.TargetRoot + constants.PacmanMirrorlistDir + "/mirrorlist")
		Expect(err).NotTo(HaveOccurred())
		_, err = fs.Stat(constants.TargetRoot + constants.PacmanMirrorlistDir + "/blackarch-mirrorlist")
		Expect(err).To(HaveOccurred())
	})
})
