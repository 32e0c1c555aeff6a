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

package hardware

import (
	"fmt"
	"runtime"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/fileops"
)

// ConfigureBuildParallelism reads the host's available parallelism and
// rewrites the target's makepkg config to build with that many jobs. A
// single-core host is left at the distribution default.
func (p *Probe) ConfigureBuildParallelism(files *fileops.FileOps) error {
	cores := runtime.NumCPU()
	p.log.Infof("the system has %d cores", cores)
	if cores <= 1 {
		return nil
	}

	path := constants.TargetRoot + constants.MakepkgConf
	edits := []struct{ find, replace string }{
		{`#MAKEFLAGS=.*`, fmt.Sprintf(`MAKEFLAGS="-j%d"`, cores)},
		{`#BUILDDIR=.*`, "BUILDDIR=/tmp/makepkg"},
		{`COMPRESSXZ=\(xz -c -z -\)`, "COMPRESSXZ=(xz -c -z - --threads=0)"},
		{`COMPRESSZST=\(zstd -c -z -q -\)`, "COMPRESSZST=(zstd -c -z -q - --threads=0)"},
		{`PKGEXT='\.pkg\.tar\.xz'`, "PKGEXT='.pkg.tar.zst'"},
	}
	for _, e := range edits {
		if err := files.SedFile(path, e.find, e.replace); err != nil {
			return err
		}
	}
	return nil
}
