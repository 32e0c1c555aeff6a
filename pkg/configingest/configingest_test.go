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

package configingest_test

import (
	"io"
	"strings"
	"testing"

	"github.com/athena-os/aegis-installer/pkg/configingest"
	"github.com/athena-os/aegis-installer/pkg/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfigingest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "configingest Suite")
}

const baseFragment = `{
	"base": "AthenaArch",
	"hostname": "athena",
	"root_passwd_hash": "$6$topsecret",
	"partition": {
		"device": "/dev/sda",
		"mode": "EraseDisk",
		"content": {
			"table_type": "gpt",
			"partitions": [
				{"blockdevice": "/dev/sda1", "filesystem": "fat32", "mountpoint": "/boot/efi", "flags": ["esp"]},
				{"blockdevice": "/dev/sda2", "filesystem": "btrfs", "mountpoint": "/"}
			]
		}
	}
}`

var _ = Describe("Ingest", func() {
	var log types.Logger

	BeforeEach(func() {
		log = types.NewLogger(io.Discard)
	})

	It("parses a single JSON object fragment into a sanitized config", func() {
		cfg, err := configingest.Ingest([]configingest.Input{configingest.StringInput(baseFragment)}, log, strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Base).To(Equal("AthenaArch"))
		Expect(cfg.Hostname).To(Equal("athena"))
		Expect(cfg.Kernel).To(Equal("linux-lts"))
	})

	It("merges later fragments over earlier ones, recursing into nested objects", func() {
		override := `{"hostname": "override", "partition": {"device": "/dev/vda"}}`
		cfg, err := configingest.Ingest([]configingest.Input{
			configingest.StringInput(baseFragment),
			configingest.StringInput(override),
		}, log, strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Hostname).To(Equal("override"))
		Expect(cfg.Partition.Device).To(Equal("/dev/vda"))
		// mode/content survive the merge since override didn't replace the whole object
		Expect(cfg.Partition.Mode).To(Equal("EraseDisk"))
	})

	It("unwraps a top-level config wrapper key", func() {
		wrapped := `{"config": ` + baseFragment + `}`
		cfg, err := configingest.Ingest([]configingest.Input{configingest.StringInput(wrapped)}, log, strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Hostname).To(Equal("athena"))
	})

	It("parses NDJSON fragments line by line", func() {
		ndjson := `{"base": "AthenaArch"}
{"hostname": "ndjson-host"}
{"partition": {"device": "/dev/sda", "mode": "EraseDisk", "content": {"table_type": "gpt", "partitions": [{"blockdevice":"/dev/sda2","filesystem":"btrfs","mountpoint":"/"}]}}}`
		cfg, err := configingest.Ingest([]configingest.Input{configingest.StringInput(ndjson)}, log, strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Hostname).To(Equal("ndjson-host"))
	})

	It("reads a literal \"-\" input from stdin", func() {
		cfg, err := configingest.Ingest([]configingest.Input{configingest.StringInput("-")}, log, strings.NewReader(baseFragment))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Hostname).To(Equal("athena"))
	})

	It("rejects a configuration that fails Sanitize", func() {
		invalid := `{"base": "AthenaArch", "hostname": "", "partition": {"device":"/dev/sda","mode":"EraseDisk","content":{"table_type":"gpt","partitions":[]}}}`
		_, err := configingest.Ingest([]configingest.Input{configingest.StringInput(invalid)}, log, strings.NewReader(""))
		Expect(err).To(HaveOccurred())
	})
})
