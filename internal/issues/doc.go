// Package issues aggregates upstream issues into a kanban board.
//
// # Overview
//
// A Fetcher (normally GitHubFetcher) pulls the issues of one repository. The
// Cache keeps the last-good issue set of every configured repository behind
// an atomic pointer, so readers never block on a refresh and never see a
// half-replaced set. The Projector maps each issue to a column at read time.
//
// # Refresh semantics
//
//   - Refresh replaces a repository's issues wholesale on success.
//   - On failure the previous issues stay in place; the error is recorded in
//     Status and returned wrapped in ErrUpstreamUnavailable.
//   - Concurrent refreshes of the same repository share one fetch.
//
// # Columns
//
// Rules are evaluated in order and the first match wins:
//
//	Done > Review > In Progress > Assigned > Inbox
package issues
