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
	"fmt"

	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/pkg/errors"
)

// InspectDisk opens devicePath and rediscovers its live partition table into
// a types.Disk arena: the PartitionPlanner's own model of what already
// exists on the block device, used to reconcile Manual/Replace descriptors
// against reality instead of blindly formatting over them. A disk with no
// partition table yet (EraseDisk's usual starting point) yields an empty
// layout rather than an error.
func InspectDisk(devicePath string) (*types.Disk, error) {
	disk, err := diskfs.Open(devicePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", devicePath)
	}
	defer disk.Close()

	model := &types.Disk{DevicePath: devicePath, SectorSize: disk.LogicalBlocksize}

	table, err := disk.GetPartitionTable()
	if err != nil {
		return model, nil
	}

	id := 0
	switch t := table.(type) {
	case *gpt.Table:
		for _, p := range t.Partitions {
			if p.Start == 0 && p.End == 0 {
				continue
			}
			id++
			model.Layout = append(model.Layout, types.DiskItem{Partition: &types.DiskPartition{
				ID:          id,
				Status:      types.StatusExists,
				Start:       int64(p.Start),
				SizeSectors: int64(p.End-p.Start) + 1,
				Label:       p.Name,
			}})
		}
	case *mbr.Table:
		for _, p := range t.Partitions {
			if p.Size == 0 {
				continue
			}
			id++
			model.Layout = append(model.Layout, types.DiskItem{Partition: &types.DiskPartition{
				ID:          id,
				Status:      types.StatusExists,
				Start:       int64(p.Start),
				SizeSectors: int64(p.Size),
			}})
		}
	default:
		return nil, errors.Errorf("unsupported partition table type %T", t)
	}
	return model, nil
}

// diskPartitionByOrdinal finds the discovered partition whose ordinal
// (assigned in on-disk order) matches bdevice's trailing partition number,
// e.g. "/dev/sda2" -> ordinal 2.
func diskPartitionByOrdinal(disk *types.Disk, bdevice string) *types.DiskPartition {
	num := extractPartitionNumber(bdevice)
	for _, item := range disk.Layout {
		if item.Partition == nil {
			continue
		}
		if fmt.Sprintf("%d", item.Partition.ID) == num {
			return item.Partition
		}
	}
	return nil
}
