// Package models defines domain entities for the taskmirror service.
//
// The package contains two categories of types:
//
// 1. Transient values read from or written to remote services
//   - [SourceItem] : A task fetched from Google Tasks, tagged with its task list
//   - [Credentials] : OAuth tokens for the source service
//
// 2. Persistent entities stored in SQLite
//   - [Account] : An enrolled user with destination settings and a [SyncPolicy]
//   - [MirrorRecord] : The link between a source task and its Notion page, unique per account and task
//   - [RunLogEntry] : The audit record of one pass, moving from [RunStarted] to [RunCompleted] or [RunFailed]
//
// Persistent entities implement [Model]. JSON projections omit tokens.
package models
