package cast

// Outcome is the result of running a request through the pipeline.
type Outcome int

const (
	// OutcomeCast means the action ran and the global cooldown was armed.
	OutcomeCast Outcome = iota

	// OutcomeIdentityMismatch means the request named another actor than
	// the authenticated sender.
	OutcomeIdentityMismatch

	// OutcomeReplay means the request was a duplicate or reordered delivery.
	OutcomeReplay

	// OutcomeUnknownSpell means the spell id is not configured.
	OutcomeUnknownSpell

	// OutcomeDisabled means the access policy denied the spell.
	OutcomeDisabled

	// OutcomeIneligible means the actor did not meet the casting precondition.
	OutcomeIneligible

	// OutcomeInsufficient means the actor lacked mana or was on cooldown.
	OutcomeInsufficient

	// OutcomeSuppressed means another actor already owns the phrase; the
	// mana was refunded.
	OutcomeSuppressed

	// OutcomeFailed means the action reported failure; the mana was refunded.
	OutcomeFailed
)

var outcomeNames = [...]string{
	OutcomeCast:             "cast",
	OutcomeIdentityMismatch: "identity_mismatch",
	OutcomeReplay:           "replay",
	OutcomeUnknownSpell:     "unknown_spell",
	OutcomeDisabled:         "disabled",
	OutcomeIneligible:       "ineligible",
	OutcomeInsufficient:     "insufficient",
	OutcomeSuppressed:       "suppressed",
	OutcomeFailed:           "failed",
}

// String returns the metric label of o.
func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Executed reports whether the action ran successfully.
func (o Outcome) Executed() bool { return o == OutcomeCast }
