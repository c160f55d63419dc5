// Package services implements the remote clients a sync pass talks to.
//
// # Interfaces
//
// The engine depends on [CredentialProvider], [SourceFetcher] and [DestinationWriter] only, so tests
// and alternative backends can stand in for the real clients.
//
// # Google Tasks
//
// [GoogleTasksService] holds one [oauth2.Config] for the application and a token per account.
// Expired tokens are refreshed through the config's token source and written back through a
// [CredentialStore] before the pass continues. Task lists and tasks are read with the generated
// google.golang.org/api/tasks/v1 client, following every page.
//
// # Notion
//
// [NotionService] writes pages with each account's integration token. Requests share one
// [rate.Limiter]. Non-2xx responses become [*APIError], which unwraps to [shared.ErrAPIRequest].
//
// # Error Handling
//
// Services use sentinel errors from the shared package:
//   - [shared.ErrRefreshFailed] : the token could not be renewed
//   - [shared.ErrNoRefreshToken] : the account has no refresh token
//   - [shared.ErrAuthFailed] : renewed credentials could not be stored, or Notion rejected the token
//   - [shared.ErrAPIRequest] : non-2xx response from either API
//   - [shared.ErrNotConfigured] : the account has no usable destination
package services
