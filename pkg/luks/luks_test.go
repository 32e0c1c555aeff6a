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

package luks_test

import (
	"strings"
	"testing"

	"github.com/athena-os/aegis-installer/pkg/luks"
	"github.com/athena-os/aegis-installer/pkg/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLuks(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "luks Suite")
}

type fakeRunner struct {
	result types.CommandResult
	err    error
}

func (f *fakeRunner) Exec(program string, args ...string) (types.CommandResult, error) {
	return f.result, f.err
}
func (f *fakeRunner) ExecInWorkdir(program, cwd string, args ...string) (types.CommandResult, error) {
	return f.result, f.err
}
func (f *fakeRunner) ExecChroot(program string, args ...string) (types.CommandResult, error) {
	return f.result, f.err
}
func (f *fakeRunner) ExecOutput(program string, args ...string) (types.CommandResult, error) {
	return f.result, f.err
}

var _ = Describe("Manager.FindLUKSPartitions", func() {
	It("picks out only crypto_LUKS entries from lsblk output", func() {
		runner := &fakeRunner{result: types.CommandResult{ExitCode: 0, Stdout: strings.Join([]string{
			"sda1 vfat 1234-5678",
			"sda2 crypto_LUKS aaaa-bbbb-cccc",
			"sda3 ext4 dddd-eeee",
		}, "\n")}}
		m := luks.New(runner)

		parts, found, err := m.FindLUKSPartitions()
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(parts).To(HaveLen(1))
		Expect(parts[0]).To(Equal(luks.Partition{DevicePath: "/dev/sda2", UUID: "aaaa-bbbb-cccc"}))
	})

	It("reports found=false when no LUKS container exists", func() {
		runner := &fakeRunner{result: types.CommandResult{ExitCode: 0, Stdout: "sda1 vfat 1234-5678\n"}}
		m := luks.New(runner)

		parts, found, err := m.FindLUKSPartitions()
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
		Expect(parts).To(BeEmpty())
	})

	It("fails when lsblk exits non-zero", func() {
		runner := &fakeRunner{result: types.CommandResult{ExitCode: 1, Stderr: "no such device"}}
		m := luks.New(runner)

		_, _, err := m.FindLUKSPartitions()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("TPM2Available", func() {
	It("returns without panicking on a host with no guaranteed TPM device", func() {
		Expect(func() { luks.TPM2Available() }).NotTo(Panic())
	})
})
