// Package enrollment implements the scheduler that binds prospects to
// sequence definitions and walks them through the steps.
//
// Lifecycle: active -> paused -> active, and from either into the terminal
// states completed (all steps exhausted) or stopped (reply, opt-out, bounce,
// or manual cancel). Terminal enrollments never dispatch again and are
// retained for audit.
//
// The scheduler owns enrollment state transitions only. Actually sending a
// step is the dispatch pool's job; it calls back into this package to
// advance or skip steps after each attempt.
package enrollment
