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

package hardware_test

import (
	"io"
	"testing"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/fileops"
	"github.com/athena-os/aegis-installer/pkg/hardware"
	"github.com/athena-os/aegis-installer/pkg/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
)

func TestHardware(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "hardware Suite")
}

// fakeRunner stubs types.Runner with canned CommandResults keyed by program.
type fakeRunner struct {
	results map[string]types.CommandResult
}

func newFakeRunner() *fakeRunner { return &fakeRunner{results: map[string]types.CommandResult{}} }

func (f *fakeRunner) set(program string, r types.CommandResult) { f.results[program] = r }

func (f *fakeRunner) Exec(program string, args ...string) (types.CommandResult, error) {
	if r, ok := f.results[program]; ok {
		return r, nil
	}
	return types.CommandResult{Program: program, Args: args, ExitCode: 0}, nil
}

func (f *fakeRunner) ExecInWorkdir(program, cwd string, args ...string) (types.CommandResult, error) {
	return f.Exec(program, args...)
}

func (f *fakeRunner) ExecChroot(program string, args ...string) (types.CommandResult, error) {
	return f.Exec(program, args...)
}

func (f *fakeRunner) ExecOutput(program string, args ...string) (types.CommandResult, error) {
	return f.Exec(program, args...)
}

var _ = Describe("Probe.DetectCPU", func() {
	var log types.Logger

	BeforeEach(func() { log = types.NewLogger(io.Discard) })

	It("adds intel-ucode and the compute runtime for an Intel host", func() {
		runner := newFakeRunner()
		runner.set("lscpu", types.CommandResult{Stdout: "Vendor ID:                       GenuineIntel\n"})
		p := hardware.New(runner, log)

		r, err := p.DetectCPU()
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Packages).To(ContainElements("intel-ucode", "intel-compute-runtime"))
	})

	It("adds amd-ucode for an AMD host", func() {
		runner := newFakeRunner()
		runner.set("lscpu", types.CommandResult{Stdout: "Vendor ID:                       AuthenticAMD\n"})
		p := hardware.New(runner, log)

		r, err := p.DetectCPU()
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Packages).To(ContainElement("amd-ucode"))
	})

	It("fails when lscpu exits non-zero", func() {
		runner := newFakeRunner()
		runner.set("lscpu", types.CommandResult{ExitCode: 1, Stderr: "boom"})
		p := hardware.New(runner, log)

		_, err := p.DetectCPU()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Probe.MicrocodeImage", func() {
	var log types.Logger
	BeforeEach(func() { log = types.NewLogger(io.Discard) })

	It("returns the Intel microcode image path", func() {
		runner := newFakeRunner()
		runner.set("lscpu", types.CommandResult{Stdout: "Vendor ID:                       GenuineIntel\n"})
		p := hardware.New(runner, log)
		Expect(p.MicrocodeImage()).To(Equal("/boot/intel-ucode.img"))
	})

	It("returns empty when the vendor can't be determined", func() {
		runner := newFakeRunner()
		runner.set("lscpu", types.CommandResult{ExitCode: 1})
		p := hardware.New(runner, log)
		Expect(p.MicrocodeImage()).To(Equal(""))
	})
})

var _ = Describe("Probe.DetectGPU", func() {
	var log types.Logger
	BeforeEach(func() { log = types.NewLogger(io.Discard) })

	It("selects the turing open driver set for a matching chip", func() {
		runner := newFakeRunner()
		runner.set("lspci", types.CommandResult{Stdout: "01:00.0 VGA compatible controller: NVIDIA Corporation TU116 [GeForce GTX 1660]\n"})
		p := hardware.New(runner, log)

		r, err := p.DetectGPU("linux")
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Packages).To(ContainElement("nvidia-open"))
		Expect(r.Edits).NotTo(BeEmpty())
	})

	It("returns no packages when nothing recognized is present", func() {
		runner := newFakeRunner()
		runner.set("lspci", types.CommandResult{Stdout: "plain bridge device\n"})
		p := hardware.New(runner, log)

		r, err := p.DetectGPU("linux")
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Packages).To(BeEmpty())
	})
})

var _ = Describe("Probe.DetectVirt and IsHyperV", func() {
	var log types.Logger
	BeforeEach(func() { log = types.NewLogger(io.Discard) })

	It("adds the qemu guest agent under kvm", func() {
		runner := newFakeRunner()
		runner.set("systemd-detect-virt", types.CommandResult{Stdout: "kvm\n"})
		p := hardware.New(runner, log)

		r, err := p.DetectVirt()
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Packages).To(ContainElement("qemu-guest-agent"))
		Expect(r.Services).To(ContainElement("qemu-guest-agent"))
	})

	It("reports IsHyperV true only under the microsoft bucket", func() {
		runner := newFakeRunner()
		runner.set("systemd-detect-virt", types.CommandResult{Stdout: "microsoft\n"})
		p := hardware.New(runner, log)

		isHyperV, err := p.IsHyperV()
		Expect(err).NotTo(HaveOccurred())
		Expect(isHyperV).To(BeTrue())
	})

	It("reports IsHyperV false for bare metal", func() {
		runner := newFakeRunner()
		runner.set("systemd-detect-virt", types.CommandResult{Stdout: "none\n"})
		p := hardware.New(runner, log)

		isHyperV, err := p.IsHyperV()
		Expect(err).NotTo(HaveOccurred())
		Expect(isHyperV).To(BeFalse())
	})
})

var _ = Describe("Probe.WriteBaseMkinitcpioConf", func() {
	It("writes a HOOKS line carrying sd-encrypt for GPU/virt edits to land on", func() {
		fs := afero.NewMemMapFs()
		files := fileops.New(fs, types.NewLogger(io.Discard))
		p := hardware.New(newFakeRunner(), types.NewLogger(io.Discard))

		Expect(p.WriteBaseMkinitcpioConf(files)).To(Succeed())

		data, err := afero.ReadFile(fs, constants.TargetRoot+constants.MkinitcpioConf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("sd-encrypt"))
		Expect(string(data)).To(ContainSubstring(`MODULES=""`))
	})
})
