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

package types

import (
	"github.com/spf13/afero"
	"k8s.io/mount-utils"
)

// FS is the filesystem abstraction every component mutates through, so tests
// can swap in afero.NewMemMapFs() instead of touching a real disk.
type FS = afero.Fs

// Mounter is the mount/unmount abstraction the PartitionPlanner uses to
// bring target partitions onto /mnt.
type Mounter = mount.Interface
