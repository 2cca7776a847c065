// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the roomchat binary: a
// tree of [Command] values dispatched by the first positional
// argument, pflag-based flag parsing bound from tagged parameter
// structs, categorized errors with exit codes, and the shared plumbing
// that turns a config file and a saved login session into a running
// [chat.Service].
//
// Commands are assembled into a tree in cmd/roomchat/main.go. Each
// command's Run receives a context that is canceled on SIGINT or
// SIGTERM and a logger scoped with the command path.
package cli
