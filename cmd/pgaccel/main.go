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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pykello/pgaccel/pkg/compute"
	"github.com/pykello/pgaccel/pkg/parquet"
	"github.com/pykello/pgaccel/pkg/parser"
	"github.com/pykello/pgaccel/pkg/storage"
	"github.com/pykello/pgaccel/pkg/util"
)

var runCfg = util.DefaultConfig()
var registry = storage.NewRegistry()

var defCfgFilePaths = []string{".", "etc/pgaccel"}
var cfgFileName = "pgaccel.toml"

func loadConfig() {
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if util.FileIsValid(fpath) {
			_, err := toml.DecodeFile(fpath, runCfg)
			if err != nil {
				util.Error("loading config file failed",
					zap.String("fpath", fpath),
					zap.Error(err))
				continue
			}
			break
		}
	}
	initEngineOptions()
}

func initEngineOptions() {
	if viper.IsSet("workers") {
		runCfg.Engine.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("simd") {
		runCfg.Engine.UseSimd = viper.GetBool("simd")
	}
	if viper.IsSet("parallel") {
		runCfg.Engine.Parallel = viper.GetBool("parallel")
	}
	if viper.IsSet("branchElim") {
		runCfg.Engine.BranchElim = viper.GetBool("branchElim")
	}
	if viper.IsSet("timing") {
		runCfg.Engine.Timing = viper.GetBool("timing")
	}
}

var info = "pgaccel: columnar analytical query engine"
var rootCmd = &cobra.Command{
	Use:          "pgaccel",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use pgaccel --help or -h")
	},
}

// --table name=path flags shared by query, schema and serve.
var tableFlags []string

func loadTables(fields []string) error {
	for _, spec := range tableFlags {
		name, path, found := strings.Cut(spec, "=")
		if !found {
			return fmt.Errorf("malformed --table %q, expected name=path", spec)
		}
		var table *storage.Table
		var err error
		duration := util.MeasureDuration(func() {
			table, err = storage.LoadTable(name, path, fields)
		})
		if err != nil {
			return err
		}
		if runCfg.Engine.Timing {
			util.Info("table loaded",
				zap.String("table", name),
				zap.Duration("duration", duration))
		}
		registry.Register(table)
	}
	return nil
}

var importFields []string
var importOut string

var importCmd = &cobra.Command{
	Use:   "import <table> <parquet-file>",
	Short: "import a parquet file and save it in the engine's table format",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableName := strings.ToLower(args[0])

		var table *storage.Table
		var err error
		duration := util.MeasureDuration(func() {
			var fields []string
			if len(importFields) > 0 {
				fields = importFields
			}
			table, err = parquet.ImportTable(tableName, args[1], fields)
		})
		if err != nil {
			return err
		}
		if runCfg.Engine.Timing {
			util.Info("parquet import done",
				zap.String("table", tableName),
				zap.Uint64("rows", table.RowCount()),
				zap.Duration("duration", duration))
		}

		out := importOut
		if out == "" {
			out = filepath.Join(runCfg.Data.Dir, tableName+".pgaccel")
		}
		return table.Save(out)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "run a SELECT against loaded tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadTables(nil); err != nil {
			return err
		}
		return runQuery(args[0])
	},
}

func runQuery(sql string) error {
	queryDesc, err := parser.ParseQuery(sql, registry)
	if err != nil {
		return err
	}

	var output *compute.QueryOutput
	duration := util.MeasureDuration(func() {
		output, err = compute.ExecuteQuery(queryDesc, compute.ParamsFromConfig(runCfg))
	})
	if err != nil {
		return err
	}

	fmt.Print(compute.FormatOutput(output))
	if runCfg.Engine.Timing {
		util.Info("query done", zap.Duration("duration", duration))
	}
	return nil
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "show the schema of loaded tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadTables(nil); err != nil {
			return err
		}
		for _, name := range registry.Names() {
			table, err := registry.Lookup(name)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%d row groups)\n", name, table.RowGroupCount())
			fmt.Printf("  %-20s%-20s%-20s\n", "Name", "Type", "Layout")
			fmt.Printf("  %-20s%-20s%-20s\n", "======", "======", "========")
			for _, desc := range table.Schema() {
				fmt.Printf("  %-20s%-20s%-20s\n", desc.Name, desc.Type, desc.Layout)
			}
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().Int("workers", compute.DefaultWorkers, "size of the executor worker pool")
	rootCmd.PersistentFlags().Bool("simd", true, "use the wide filter kernels")
	rootCmd.PersistentFlags().Bool("parallel", true, "fan out partitions across workers")
	rootCmd.PersistentFlags().Bool("branchElim", true, "eliminate bitmap tests from aggregation loops")
	rootCmd.PersistentFlags().Bool("timing", true, "log operation timings")
	for _, flag := range []string{"workers", "simd", "parallel", "branchElim", "timing"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	importCmd.Flags().StringSliceVar(&importFields, "fields", nil, "columns to import (default: all)")
	importCmd.Flags().StringVar(&importOut, "out", "", "output path (default: <dataDir>/<table>.pgaccel)")

	for _, cmd := range []*cobra.Command{queryCmd, schemaCmd, serveCmd} {
		cmd.Flags().StringSliceVar(&tableFlags, "table", nil, "table to load, as name=path (repeatable)")
	}

	rootCmd.AddCommand(importCmd, queryCmd, schemaCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
