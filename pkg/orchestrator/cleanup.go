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

package orchestrator

import (
	"github.com/hashicorp/go-multierror"
)

// cleanStack runs pushed cleanup actions in LIFO order once, aggregating
// any failures alongside the triggering error so a failed unmount doesn't
// hide the install error that caused it.
type cleanStack struct {
	actions []func() error
}

func (c *cleanStack) push(action func() error) {
	c.actions = append(c.actions, action)
}

func (c *cleanStack) run(cause error) error {
	result := cause
	for i := len(c.actions) - 1; i >= 0; i-- {
		if err := c.actions[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
