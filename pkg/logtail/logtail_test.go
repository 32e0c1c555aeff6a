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

package logtail

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLogtail(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "logtail Suite")
}

func writeTemp(t interface {
	Helper()
}, content string) string {
	f, err := os.CreateTemp("", "logtail")
	Expect(err).NotTo(HaveOccurred())
	_, err = f.WriteString(content)
	Expect(err).NotTo(HaveOccurred())
	Expect(f.Close()).To(Succeed())
	return f.Name()
}

var _ = Describe("Reader.Poll", func() {
	It("returns nothing for a file that doesn't exist yet", func() {
		r := New("/nonexistent/path/to/log", 0)
		lines, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(lines).To(BeEmpty())
	})

	It("parses newly appended lines and advances the offset", func() {
		path := writeTemp(GinkgoT(), "first line\nsecond line\n")
		defer os.Remove(path)

		r := New(path, 0)
		lines, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(lines).To(HaveLen(2))
		Expect(lines[0].Spans[0].Text).To(Equal("first line"))

		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		Expect(err).NotTo(HaveOccurred())
		_, err = f.WriteString("third line\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		lines, err = r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(lines).To(HaveLen(1))
		Expect(lines[0].Spans[0].Text).To(Equal("third line"))
	})

	It("collapses consecutive blank lines into one", func() {
		path := writeTemp(GinkgoT(), "a\n\n\n\nb\n")
		defer os.Remove(path)

		r := New(path, 0)
		lines, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())
		// a, one collapsed blank, b
		Expect(lines).To(HaveLen(3))
	})

	It("evicts the oldest lines once the ring limit is exceeded", func() {
		path := writeTemp(GinkgoT(), "one\ntwo\nthree\nfour\n")
		defer os.Remove(path)

		r := New(path, 2)
		_, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Lines()).To(HaveLen(2))
		Expect(r.Lines()[1].Spans[0].Text).To(Equal("four"))
	})

	It("resets to the start when the file shrinks (rotation)", func() {
		path := writeTemp(GinkgoT(), "old content that is long\n")
		defer os.Remove(path)

		r := New(path, 0)
		_, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())

		Expect(os.WriteFile(path, []byte("new\n"), 0644)).To(Succeed())
		lines, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(lines).To(HaveLen(1))
		Expect(lines[0].Spans[0].Text).To(Equal("new"))
	})
})

var _ = Describe("parseANSI", func() {
	It("returns plain text as a single unstyled span", func() {
		spans := parseANSI([]byte("hello world"))
		Expect(spans).To(HaveLen(1))
		Expect(spans[0].Text).To(Equal("hello world"))
		Expect(spans[0].Bold).To(BeFalse())
		Expect(spans[0].FG).To(Equal(-1))
	})

	It("splits styled runs out of SGR-delimited text", func() {
		spans := parseANSI([]byte("\x1b[1mbold\x1b[0m plain"))
		Expect(len(spans)).To(BeNumerically(">=", 2))
		Expect(spans[0].Bold).To(BeTrue())
		Expect(spans[0].Text).To(Equal("bold"))
	})
})
