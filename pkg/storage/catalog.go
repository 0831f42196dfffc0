// Copyright 2024 pykello
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"strings"

	treemap "github.com/liyue201/gostl/ds/map"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/util"
)

// Registry tracks loaded tables by lowercased name. Tables are read-only
// during query execution; the lock only guards registration churn.
type Registry struct {
	lock   *util.ReentryLock
	tables *treemap.Map[string, *Table]
}

func NewRegistry() *Registry {
	cmp := func(a, b string) int {
		return strings.Compare(a, b)
	}
	return &Registry{
		lock:   util.NewReentryLock(),
		tables: treemap.New[string, *Table](cmp),
	}
}

func (registry *Registry) Register(table *Table) {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	registry.tables.Insert(strings.ToLower(table.Name()), table)
}

func (registry *Registry) Lookup(name string) (*Table, error) {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	table, err := registry.tables.Get(strings.ToLower(name))
	if err != nil {
		return nil, common.Invalidf("table not found: %s", strings.ToLower(name))
	}
	return table, nil
}

func (registry *Registry) Forget(name string) error {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	key := strings.ToLower(name)
	if _, err := registry.tables.Get(key); err != nil {
		return common.Invalidf("table not found: %s", key)
	}
	registry.tables.Erase(key)
	return nil
}

func (registry *Registry) Names() []string {
	registry.lock.Lock()
	defer registry.lock.Unlock()
	names := make([]string, 0)
	for iter := registry.tables.Begin(); iter.IsValid(); iter.Next() {
		names = append(names, iter.Key())
	}
	return names
}
