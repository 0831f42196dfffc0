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

package util

type EngineOptions struct {
	Workers    int  `toml:"workers"`
	UseSimd    bool `toml:"useSimd"`
	BranchElim bool `toml:"branchElim"`
	Parallel   bool `toml:"parallel"`
	Timing     bool `toml:"timing"`
}

type ServerOptions struct {
	Addr string `toml:"addr"`
}

type DataOptions struct {
	Dir string `toml:"dir"`
}

type Config struct {
	Engine EngineOptions `toml:"engine"`
	Server ServerOptions `toml:"server"`
	Data   DataOptions   `toml:"data"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineOptions{
			Workers:    8,
			UseSimd:    true,
			BranchElim: true,
			Parallel:   true,
			Timing:     true,
		},
		Server: ServerOptions{
			Addr: "127.0.0.1:5432",
		},
		Data: DataOptions{
			Dir: ".",
		},
	}
}
