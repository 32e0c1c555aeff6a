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

// Package configingest implements ConfigIngest: parsing and merging one or
// more JSON fragments (files, inline strings, or STDIN) into a
// strongly-typed InstallerConfig, redacting secrets before logging.
package configingest

import (
	"encoding/json"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/athena-os/aegis-installer/pkg/types"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Input is one caller-supplied configuration source: either a file path or
// an inline JSON/NDJSON string (the literal "-" reads from STDIN).
type Input struct {
	Path      string
	IsLiteral bool
	Literal   string
}

// FileInput builds an Input read from a file path.
func FileInput(path string) Input { return Input{Path: path} }

// StringInput builds an Input from an inline JSON string.
func StringInput(s string) Input { return Input{IsLiteral: true, Literal: s} }

var redactions = []*regexp.Regexp{
	regexp.MustCompile(`"password_hash":[^,}]*`),
	regexp.MustCompile(`"root_passwd_hash":[^,}]*`),
}

func redact(contents string) string {
	for _, re := range redactions {
		contents = re.ReplaceAllString(contents, `"`+fieldName(re)+`": "*REDACTED*"`)
	}
	return contents
}

func fieldName(re *regexp.Regexp) string {
	if strings.Contains(re.String(), "root_passwd_hash") {
		return "root_passwd_hash"
	}
	return "password_hash"
}

// Ingest reads, redacts-for-logging, parses, and merges every input in
// order, then decodes the merged root into an InstallerConfig.
func Ingest(inputs []Input, log types.Logger, stdin io.Reader) (*types.InstallerConfig, error) {
	merged := map[string]interface{}{}

	for idx, input := range inputs {
		raw, label, err := readInput(input, stdin)
		if err != nil {
			return nil, err
		}

		log.Infof("configuration fragment #%d (%s):\n%s", idx, label, redact(raw))

		frags, err := parseFragments(label, raw)
		if err != nil {
			return nil, err
		}
		for _, frag := range frags {
			mergeValues(merged, frag)
		}
	}

	unwrapKnownRoots(merged)

	var cfg types.InstallerConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build config decoder")
	}
	if err := decoder.Decode(merged); err != nil {
		return nil, errors.Wrap(err, "merged configuration is invalid")
	}

	if err := cfg.Sanitize(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

func readInput(input Input, stdin io.Reader) (raw, label string, err error) {
	if input.IsLiteral {
		if input.Literal == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return "", "", errors.Wrap(err, "read configuration from stdin")
			}
			return string(data), "stdin", nil
		}
		return input.Literal, "json string", nil
	}

	data, err := os.ReadFile(input.Path)
	if err != nil {
		return "", "", errors.Wrapf(err, "read config file %s", input.Path)
	}
	return string(data), "file: " + input.Path, nil
}

// parseFragments interprets raw as a single JSON value, a JSON array of
// values, or NDJSON, returning the list of fragments to merge in order.
func parseFragments(label, raw string) ([]map[string]interface{}, error) {
	var single interface{}
	if err := json.Unmarshal([]byte(raw), &single); err == nil {
		switch v := single.(type) {
		case []interface{}:
			frags := make([]map[string]interface{}, 0, len(v))
			for _, item := range v {
				m, ok := item.(map[string]interface{})
				if !ok {
					return nil, errors.Errorf("%s: array element is not a JSON object", label)
				}
				frags = append(frags, m)
			}
			return frags, nil
		case map[string]interface{}:
			return []map[string]interface{}{v}, nil
		default:
			return nil, errors.Errorf("%s: top-level JSON value must be an object or array of objects", label)
		}
	}

	var frags []map[string]interface{}
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, errors.Wrapf(err, "parse JSON (NDJSON) from %s line %d", label, i+1)
		}
		frags = append(frags, m)
	}
	if len(frags) == 0 {
		return nil, errors.Errorf("no valid JSON found in %s", label)
	}
	return frags, nil
}

// mergeValues merges src into dst: objects merge key-wise recursively,
// arrays are replaced wholesale, and scalars replace.
func mergeValues(dst, src map[string]interface{}) {
	for k, v := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		existingMap, existingIsMap := existing.(map[string]interface{})
		srcMap, srcIsMap := v.(map[string]interface{})
		if existingIsMap && srcIsMap {
			mergeValues(existingMap, srcMap)
			continue
		}
		dst[k] = v
	}
}

// unwrapKnownRoots unwraps the "config" and "drives" wrapper keys into the
// root, then removes them.
func unwrapKnownRoots(root map[string]interface{}) {
	if cfg, ok := root["config"].(map[string]interface{}); ok {
		mergeValues(root, cfg)
	}
	if drv, ok := root["drives"].(map[string]interface{}); ok {
		mergeValues(root, drv)
	}
	delete(root, "config")
	delete(root, "drives")
}
