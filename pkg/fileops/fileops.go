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

// Package fileops provides the logged filesystem mutations every component
// uses to write into the target root, backed by an afero.Fs so tests can
// substitute a memory-backed filesystem.
package fileops

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/athena-os/aegis-installer/pkg/constants"
	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const osAppendFlags = os.O_APPEND | os.O_WRONLY

// FileOps bundles the logged filesystem primitives over a types.FS.
type FileOps struct {
	fs     types.FS
	logger types.Logger
}

// New builds a FileOps over fs, logging every mutation through logger.
func New(fs types.FS, logger types.Logger) *FileOps {
	return &FileOps{fs: fs, logger: logger}
}

// CreateFile creates (or truncates) an empty file at path.
func (f *FileOps) CreateFile(path string) error {
	f.logger.Infof("create %s", path)
	file, err := f.fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	return file.Close()
}

// WriteFile creates path with the given content and mode, truncating any
// existing file. Used for key material and generated config that has no
// natural "append to existing file" semantics.
func (f *FileOps) WriteFile(path string, content []byte, mode os.FileMode) error {
	f.logger.Infof("create %s", path)
	if err := afero.WriteFile(f.fs, path, content, mode); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// CopyFile copies path to destPath, preserving content.
func (f *FileOps) CopyFile(path, destPath string) error {
	f.logger.Infof("copy %s to %s", path, destPath)
	src, err := f.fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "copy %s to %s", path, destPath)
	}
	defer src.Close()

	dst, err := f.fs.Create(destPath)
	if err != nil {
		return errors.Wrapf(err, "copy %s to %s", path, destPath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, "copy %s to %s", path, destPath)
	}
	return nil
}

// CopyMultipleFiles copies every file matching pattern into destDir,
// creating destDir first. A pattern matching nothing is logged and
// skipped rather than treated as fatal.
func (f *FileOps) CopyMultipleFiles(pattern, destDir string) error {
	if err := f.CreateDirectory(destDir); err != nil {
		return err
	}

	matches, err := afero.Glob(f.fs, pattern)
	if err != nil {
		return errors.Wrapf(err, "invalid glob pattern %s", pattern)
	}
	if len(matches) == 0 {
		f.logger.Warnf("glob %s matched no files", pattern)
		return nil
	}

	for _, match := range matches {
		info, err := f.fs.Stat(match)
		if err != nil {
			return errors.Wrapf(err, "stat %s", match)
		}
		if info.IsDir() {
			continue
		}
		dest := filepath.Join(destDir, filepath.Base(match))
		if err := f.CopyFile(match, dest); err != nil {
			return err
		}
	}
	return nil
}

// RenameFile renames path to destPath.
func (f *FileOps) RenameFile(path, destPath string) error {
	f.logger.Infof("rename %s to %s", path, destPath)
	if err := f.fs.Rename(path, destPath); err != nil {
		return errors.Wrapf(err, "rename %s to %s", path, destPath)
	}
	return nil
}

// RemoveFile removes path.
func (f *FileOps) RemoveFile(path string) error {
	f.logger.Infof("remove %s", path)
	if err := f.fs.Remove(path); err != nil {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}

// AppendFile appends content plus a trailing newline to the file at path,
// which must already exist.
func (f *FileOps) AppendFile(path, content string) error {
	f.logger.Infof("append %q to file %s", strings.TrimRight(content, "\n"), path)
	file, err := f.fs.OpenFile(path, osAppendFlags, constants.FilePerm)
	if err != nil {
		return errors.Wrapf(err, "append to %s", path)
	}
	defer file.Close()

	if _, err := file.Write([]byte(content + "\n")); err != nil {
		return errors.Wrapf(err, "append to %s", path)
	}
	return nil
}

// SedFile performs a whole-file regex substitution of find with replace,
// reading the file fully and rewriting it truncated.
func (f *FileOps) SedFile(path, find, replace string) error {
	f.logger.Infof("sed %q to %q in file %s", find, replace, path)
	contents, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return errors.Wrapf(err, "sed %s", path)
	}
	re, err := regexp.Compile(find)
	if err != nil {
		return errors.Wrapf(err, "invalid pattern %q", find)
	}
	newContents := re.ReplaceAll(contents, []byte(replace))
	return afero.WriteFile(f.fs, path, newContents, constants.FilePerm)
}

// ReplaceLineInFile replaces, line by line, every line containing needle
// with the literal replacement line.
func (f *FileOps) ReplaceLineInFile(path, needle, replacement string) error {
	f.logger.Infof("replace line containing %q in file %s", needle, path)
	contents, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return errors.Wrapf(err, "replace line in %s", path)
	}
	lines := strings.Split(string(contents), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var b strings.Builder
	for _, line := range lines {
		if strings.Contains(line, needle) {
			b.WriteString(replacement)
		} else {
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return afero.WriteFile(f.fs, path, []byte(b.String()), constants.FilePerm)
}

// CreateDirectory recursively creates path and any missing parents.
func (f *FileOps) CreateDirectory(path string) error {
	f.logger.Infof("create directory %s", path)
	if err := f.fs.MkdirAll(path, constants.DirPerm); err != nil {
		return errors.Wrapf(err, "create directory %s", path)
	}
	return nil
}

// Eval turns a FileOps call's error into a fatal, logged failure, mirroring
// files_eval in the spec.
func Eval(log types.Logger, err error, description string) error {
	if err != nil {
		log.Errorf("%s: %v", description, err)
		return err
	}
	log.Debugf("%s: ok", description)
	return nil
}
