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

package fileops_test

import (
	"io"
	"testing"

	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/athena-os/aegis-installer/pkg/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
)

func TestFileops(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "fileops Suite")
}

var _ = Describe("FileOps", func() {
	var (
		fs types.FS
		f  *fileops.FileOps
	)

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
		f = fileops.New(fs, types.NewLogger(io.Discard))
	})

	It("creates and writes files", func() {
		Expect(f.CreateFile("/empty")).To(Succeed())
		data, err := afero.ReadFile(fs, "/empty")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(BeEmpty())

		Expect(f.WriteFile("/keys/mok.key", []byte("secret"), 0400)).To(Succeed())
		data, err = afero.ReadFile(fs, "/keys/mok.key")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("secret"))
	})

	It("copies a file's contents", func() {
		Expect(afero.WriteFile(fs, "/src", []byte("hello"), 0644)).To(Succeed())
		Expect(f.CopyFile("/src", "/dst")).To(Succeed())
		data, err := afero.ReadFile(fs, "/dst")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("hello"))
	})

	It("skips rather than fails a glob matching no files", func() {
		Expect(f.CopyMultipleFiles("/nothing/*.conf", "/dest")).To(Succeed())
		exists, err := afero.DirExists(fs, "/dest")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("copies every file matched by a glob into the destination directory", func() {
		Expect(afero.WriteFile(fs, "/confs/a.conf", []byte("a"), 0644)).To(Succeed())
		Expect(afero.WriteFile(fs, "/confs/b.conf", []byte("b"), 0644)).To(Succeed())
		Expect(f.CopyMultipleFiles("/confs/*.conf", "/dest")).To(Succeed())

		a, err := afero.ReadFile(fs, "/dest/a.conf")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(a)).To(Equal("a"))

		b, err := afero.ReadFile(fs, "/dest/b.conf")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal("b"))
	})

	It("appends content with a trailing newline", func() {
		Expect(afero.WriteFile(fs, "/fstab", []byte("# header\n"), 0644)).To(Succeed())
		Expect(f.AppendFile("/fstab", "UUID=abc / btrfs defaults 0 0")).To(Succeed())
		data, err := afero.ReadFile(fs, "/fstab")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("# header\nUUID=abc / btrfs defaults 0 0\n"))
	})

	It("substitutes a regex across the whole file", func() {
		Expect(afero.WriteFile(fs, "/makepkg.conf", []byte("#MAKEFLAGS=\"-j2\"\n"), 0644)).To(Succeed())
		Expect(f.SedFile("/makepkg.conf", `#MAKEFLAGS=.*`, `MAKEFLAGS="-j8"`)).To(Succeed())
		data, err := afero.ReadFile(fs, "/makepkg.conf")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("MAKEFLAGS=\"-j8\"\n"))
	})

	It("replaces whole lines containing a needle", func() {
		Expect(afero.WriteFile(fs, "/hosts", []byte("127.0.0.1 old\nother line\n"), 0644)).To(Succeed())
		Expect(f.ReplaceLineInFile("/hosts", "127.0.0.1", "127.0.0.1 new")).To(Succeed())
		data, err := afero.ReadFile(fs, "/hosts")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("127.0.0.1 new\nother line\n"))
	})

	It("creates nested directories", func() {
		Expect(f.CreateDirectory("/a/b/c")).To(Succeed())
		exists, err := afero.DirExists(fs, "/a/b/c")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})
})

var _ = Describe("Eval", func() {
	It("passes through a nil error", func() {
		Expect(fileops.Eval(types.NewLogger(io.Discard), nil, "do thing")).To(Succeed())
	})

	It("returns the original error", func() {
		err := fileops.Eval(types.NewLogger(io.Discard), afero.ErrFileNotFound, "do thing")
		Expect(err).To(MatchError(afero.ErrFileNotFound))
	})
})
