// Package suppression implements the per-organization suppression registry.
//
// This is the single source of truth for whether a contact identity may
// ever be contacted again. Entries flow in from multiple sources (opt-out
// links, hard bounces, provider webhooks, manual blacklisting) and are
// checked immediately before every dispatch attempt — not only at
// enrollment time, because a prospect can opt out between scheduling and
// execution.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
