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

package execrunner_test

import (
	"io"
	"os"
	"testing"

	"github.com/athena-os/aegis-installer/pkg/execrunner"
	"github.com/athena-os/aegis-installer/pkg/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestExecrunner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "execrunner Suite")
}

var _ = Describe("runner.Exec", func() {
	var r types.Runner

	BeforeEach(func() { r = execrunner.New() })

	It("captures stdout and a zero exit code on success", func() {
		result, err := r.Exec("echo", "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success()).To(BeTrue())
		Expect(result.Stdout).To(Equal("hello\n"))
	})

	It("reports a non-zero exit code without returning a transport error", func() {
		result, err := r.Exec("sh", "-c", "exit 3")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success()).To(BeFalse())
		Expect(result.ExitCode).To(Equal(3))
	})

	It("returns a transport error when the program doesn't exist", func() {
		_, err := r.Exec("definitely-not-a-real-binary")
		Expect(err).To(HaveOccurred())
	})

	It("runs with the requested working directory", func() {
		dir, err := os.MkdirTemp("", "execrunner")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		result, err := r.ExecInWorkdir("pwd", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Stdout).To(ContainSubstring(dir))
	})
})

var _ = Describe("Eval", func() {
	log := types.NewLogger(io.Discard)

	It("returns nil for a successful result", func() {
		Expect(execrunner.Eval(log, types.CommandResult{ExitCode: 0}, nil, "step")).To(Succeed())
	})

	It("returns the transport error unchanged", func() {
		transportErr := os.ErrNotExist
		Expect(execrunner.Eval(log, types.CommandResult{}, transportErr, "step")).To(MatchError(transportErr))
	})

	It("turns a non-zero exit code into an error carrying stderr", func() {
		err := execrunner.Eval(log, types.CommandResult{ExitCode: 1, Stderr: "denied"}, nil, "step")
		Expect(err).To(MatchError(ContainSubstring("denied")))
	})
})

var _ = Describe("EvalResult", func() {
	log := types.NewLogger(io.Discard)

	It("returns captured stdout on success", func() {
		out, err := execrunner.EvalResult(log, types.CommandResult{ExitCode: 0, Stdout: "value\n"}, nil, "step")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("value\n"))
	})

	It("discards stdout and returns the error on failure", func() {
		out, err := execrunner.EvalResult(log, types.CommandResult{ExitCode: 1, Stderr: "bad"}, nil, "step")
		Expect(err).To(HaveOccurred())
		Expect(out).To(BeEmpty())
	})
})
