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

package partitioner

import (
	"testing"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPartitioner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "partitioner Suite")
}

var _ = Describe("extractPartitionNumber", func() {
	It("strips the trailing digits off a plain block device", func() {
		Expect(extractPartitionNumber("/dev/sda2")).To(Equal("2"))
	})

	It("handles multi-digit partition numbers", func() {
		Expect(extractPartitionNumber("/dev/nvme0n1p12")).To(Equal("12"))
	})
})

var _ = Describe("deviceSuffix", func() {
	It("uses p for nvme devices", func() {
		Expect(deviceSuffix("/dev/nvme0n1")).To(Equal("p"))
	})

	It("uses p for mmcblk devices", func() {
		Expect(deviceSuffix("/dev/mmcblk0")).To(Equal("p"))
	})

	It("uses no suffix for plain sata/scsi devices", func() {
		Expect(deviceSuffix("/dev/sda")).To(Equal(""))
	})
})

var _ = Describe("rootDeviceName", func() {
	It("strips the /dev/ prefix", func() {
		Expect(rootDeviceName("/dev/sda3")).To(Equal("sda3"))
	})
})

var _ = Describe("eraseDiskOptions", func() {
	It("detects an encrypted root partition", func() {
		cfg := &types.InstallerConfig{Partition: types.PartitionSpec{Content: types.PartitionContent{
			Partitions: []types.PartitionDescriptor{
				{MountPoint: "/", Flags: []string{constants.FlagEncrypt}},
			},
		}}}
		encrypted, swapSize := eraseDiskOptions(cfg)
		Expect(encrypted).To(BeTrue())
		Expect(swapSize).To(BeEmpty())
	})

	It("computes the swap size from the descriptor's start/end", func() {
		cfg := &types.InstallerConfig{Partition: types.PartitionSpec{Content: types.PartitionContent{
			Partitions: []types.PartitionDescriptor{
				{Filesystem: constants.FSSwap, Start: 512, End: 4608},
			},
		}}}
		_, swapSize := eraseDiskOptions(cfg)
		Expect(swapSize).To(Equal("4096MiB"))
	})

	It("reports no encryption and no swap for a plain layout", func() {
		cfg := &types.InstallerConfig{Partition: types.PartitionSpec{Content: types.PartitionContent{
			Partitions: []types.PartitionDescriptor{{MountPoint: "/"}},
		}}}
		encrypted, swapSize := eraseDiskOptions(cfg)
		Expect(encrypted).To(BeFalse())
		Expect(swapSize).To(BeEmpty())
	})
})
