// Package pipeline implements the prospect pipeline state machine: the
// coarse lifecycle label that tracks a prospect across all sequences.
//
// Transitions are pure functions so every consumer (interaction consumer,
// dispatch pool, API) shares one set of rules. The machine never regresses
// automatically; only an explicit operator override moves a prospect
// backward, and nothing ever leaves opted_out.
package pipeline

import "github.com/leadpulse/outreach/internal/domain"

// stageRank orders stages for the no-automatic-regression rule.
var stageRank = map[domain.Stage]int{
	domain.StageNew:        0,
	domain.StageEnriched:   1,
	domain.StageQualified:  2,
	domain.StageInSequence: 3,
	domain.StageReplied:    4,
	domain.StageConverted:  5,
	domain.StageOptedOut:   6,
}

// Known reports whether s is a valid stage.
func Known(s domain.Stage) bool {
	_, ok := stageRank[s]
	return ok
}

// Apply computes the stage that results from an automatic signal moving the
// prospect toward target. It returns the new stage and whether anything
// changed. Automatic transitions only move forward: a converted prospect
// cannot silently fall back to in_sequence, and opted_out absorbs everything.
func Apply(current, target domain.Stage) (domain.Stage, bool) {
	if !Known(current) || !Known(target) {
		return current, false
	}
	if current == domain.StageOptedOut {
		return current, false
	}
	if target == domain.StageOptedOut {
		return domain.StageOptedOut, true
	}
	if stageRank[target] <= stageRank[current] {
		return current, false
	}
	return target, true
}

// Override applies an explicit operator action. Operators may move a
// prospect backward (e.g. re-qualify after a stale conversion), but
// opted_out remains absorbing even for operators — re-consent runs through
// the suppression registry, not the pipeline.
func Override(current, target domain.Stage) (domain.Stage, bool) {
	if !Known(current) || !Known(target) {
		return current, false
	}
	if current == domain.StageOptedOut {
		return current, false
	}
	return target, current != target
}

// StageForInteraction maps an interaction to the stage it implies, if any.
// Returns false for interaction types that carry no pipeline meaning.
func StageForInteraction(ix domain.Interaction) (domain.Stage, bool) {
	switch ix.Type {
	case domain.InteractionReplied:
		return domain.StageReplied, true
	case domain.InteractionConverted:
		return domain.StageConverted, true
	case domain.InteractionOptedOut:
		return domain.StageOptedOut, true
	}
	return "", false
}
