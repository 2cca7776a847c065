// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/roomchat/cmd/roomchat/cli"
	"github.com/bureau-foundation/roomchat/lib/version"
)

type versionParams struct {
	cli.JSONOutput
}

func versionCommand() *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print build information",
		Params:  func() any { return &params },
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			if done, err := params.EmitJSON(version.Current()); done {
				return err
			}
			_, err := fmt.Fprintln(cli.Stdout, "roomchat "+version.Full())
			return err
		},
	}
}
