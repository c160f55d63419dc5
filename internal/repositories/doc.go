// Package repositories implements SQLite persistence for accounts, mirror records and run logs.
//
// Key Implementations:
//   - [AccountRepository] : Accounts, credentials, destination settings and sync policy
//   - [MirrorRepository] : Mirror records, written only through a single-statement upsert on (account_id, source_item_id)
//   - [RunLogRepository] : Run history and the per-account admission guard
//
// # Admission
//
// [RunLogRepository.Open] is the only way to start a pass. It runs in an immediate transaction and
// the schema carries a partial unique index on run_logs(account_id) WHERE status = 'started', so two
// callers can never both hold a started entry for the same account. A running pass renews its lease
// with [RunLogRepository.Heartbeat]. A started entry not renewed within the configured lease is closed
// as failed when the next pass is admitted, or by [RunLogRepository.ExpireStale].
//
// Terminal transitions update WHERE status = 'started', which makes completed and failed entries immutable.
package repositories
