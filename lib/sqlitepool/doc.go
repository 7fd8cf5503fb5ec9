// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite databases the CLI keeps on local
// disk, currently the run audit log.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool with fixed pragmas and
// versioned schema migrations. Callers [Pool.Take] a connection and
// [Pool.Put] it back, or use [Pool.With]; connections are not safe for
// concurrent use.
//
// # Pragmas
//
//   - journal_mode=WAL: readers (rlm history) never block the writer
//     (a running rlm run).
//   - synchronous=NORMAL: survives process crashes without an fsync per
//     commit.
//   - busy_timeout=5000: two concurrent runs wait for the write lock
//     instead of failing with SQLITE_BUSY.
//   - foreign_keys=ON: subcall rows must belong to a run.
//   - temp_store=MEMORY.
//
// # Migrations
//
// Config.Migrations is an append-only list of SQL scripts. Script i
// brings the database to user_version i+1. Open applies the scripts the
// database has not seen yet, each in its own transaction, before any
// connection is handed out. Never edit a released script; append a new
// one.
package sqlitepool
