package events

import (
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/resources"
	"github.com/talgya/fjordheim/internal/simerr"
)

// Outcome is the result of resolving an event choice.
type Outcome struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Effects content.Effects `json:"-"`
}

// ResolveChoice applies choice idx of ev. Requirements are checked before
// anything is rolled or applied.
//
// A risk choice succeeds when the draw is at least the risk; a skill check
// uses the population-derived player level. Either way the matching
// success/failure effects apply. Plain choices apply their effects.
func (e *Engine) ResolveChoice(ev content.EventDef, idx int, ledger Ledger) (Outcome, error) {
	const op = "resolve event choice"
	if idx < 0 || idx >= len(ev.Choices) {
		return Outcome{}, simerr.Rejected(op, "choice %d out of range for %s", idx, ev.ID)
	}
	ch := ev.Choices[idx]
	if len(ch.Requires) > 0 && !ledger.HasEnough(ch.Requires) {
		return Outcome{}, simerr.Rejected(op, "insufficient resources")
	}

	var out Outcome
	switch {
	case ch.Risk != nil:
		out.Success = e.rng.Float64() >= *ch.Risk
		out.Effects = pick(out.Success, ch.SuccessEffects, ch.FailureEffects)
		if !out.Success {
			out.Message = ch.FailureMessage
		}
	case ch.SkillCheck != nil:
		out.Success = ch.SkillCheck.Roll(e.rng, ledger.Get(resources.Population))
		out.Effects = pick(out.Success, ch.SuccessEffects, ch.FailureEffects)
		if !out.Success {
			out.Message = ch.FailureMessage
		}
	default:
		out.Success = true
		out.Effects = ch.Effects
	}
	e.ApplyEffects(out.Effects, ledger)
	return out, nil
}

func pick(success bool, ok, fail content.Effects) content.Effects {
	if success {
		return ok
	}
	return fail
}
