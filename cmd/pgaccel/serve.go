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
	"context"

	wire "github.com/jeroenrinzema/psql-wire"
	"github.com/lib/pq/oid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pykello/pgaccel/pkg/compute"
	"github.com/pykello/pgaccel/pkg/parser"
	"github.com/pykello/pgaccel/pkg/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "answer queries over the Postgres wire protocol",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadTables(nil); err != nil {
			return err
		}
		util.Info("listening", zap.String("addr", runCfg.Server.Addr))
		return wire.ListenAndServe(runCfg.Server.Addr, serveHandler)
	},
}

func serveHandler(ctx context.Context, sql string) (wire.PreparedStatements, error) {
	util.Info("incoming SQL", zap.String("query", sql))

	queryDesc, err := parser.ParseQuery(sql, registry)
	if err != nil {
		return nil, err
	}

	output, err := compute.ExecuteQuery(queryDesc, compute.ParamsFromConfig(runCfg))
	if err != nil {
		return nil, err
	}

	cols := make(wire.Columns, 0, len(output.FieldNames))
	for _, fieldName := range output.FieldNames {
		cols = append(cols, wire.Column{
			Name:  fieldName,
			Oid:   oid.T_varchar,
			Width: 256,
		})
	}

	handle := func(ctx context.Context, writer wire.DataWriter, parameters []wire.Parameter) error {
		for _, row := range output.Values {
			values := make([]any, len(row))
			for i, v := range row {
				values[i] = v
			}
			if err := writer.Row(values); err != nil {
				return err
			}
		}
		return writer.Complete("SELECT")
	}

	return wire.Prepared(wire.NewStatement(handle, wire.WithColumns(cols))), nil
}
