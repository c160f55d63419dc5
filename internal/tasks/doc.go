// Package tasks runs Google Tasks → Notion sync passes for many accounts.
//
// # Core Operations
//
//  1. [MirrorEngine.Run] : One pass for one admitted account
//     - Loads the account and checks its Notion destination
//     - Renews Google credentials when expired
//     - Fetches every task of every task list (any failure aborts the pass)
//     - Creates or updates one Notion page per task, recording each result as a mirror record
//     - Closes the run log entry as completed (item errors included) or failed
//
//  2. [Coordinator] : Caller boundary for the HTTP API, CLI and scheduler
//     - Start admits and queues a background pass; RunNow runs it in the caller
//     - Status, SetPolicy, ListMirrorRecords, Stats, ConfigureDestination
//
//  3. [Scheduler] : Cron sweep starting automatic passes for accounts whose interval elapsed
//
// # Admission
//
// Passes are admitted through the run log (see [RunLog]). At most one started entry exists per
// account, so a second Start for the same account fails with [shared.ErrAlreadyRunning].
//
// # Background Work
//
// [Dispatcher] is a fixed worker pool with a bounded queue. Passes run on the dispatcher's
// context, not the request's, and a full queue is rejected with [shared.ErrQueueFull].
//
// # Progress Reporting
//
// [MirrorEngine.Run] sends [ProgressUpdate] values on an optional channel.
// Updates use select with default to prevent blocking.
package tasks
