// Package dialogue runs branching conversations. At most one dialogue is
// active; the engine is either inactive or positioned on a node.
package dialogue

import (
	"log/slog"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/entropy"
	"github.com/talgya/fjordheim/internal/resources"
	"github.com/talgya/fjordheim/internal/simerr"
)

// Ledger is the slice of the resource ledger dialogue touches.
type Ledger interface {
	Get(id string) float64
	HasEnough(cost map[string]float64) bool
	Apply(deltas map[string]float64)
}

// FlagSetter receives event_flag effects.
type FlagSetter interface {
	SetFlag(id string)
}

// ChoiceView is a choice as presented to the player.
type ChoiceView struct {
	Index     int                `json:"index"`
	Text      string             `json:"text"`
	Requires  map[string]float64 `json:"requires,omitempty"`
	Available bool               `json:"available"`
}

// View describes the active node.
type View struct {
	DialogueID string       `json:"dialogueId"`
	NodeID     string       `json:"nodeId"`
	Speaker    string       `json:"speaker"`
	Portrait   string       `json:"portrait,omitempty"`
	Text       string       `json:"text"`
	Choices    []ChoiceView `json:"choices"`
	InCombat   bool         `json:"inCombat,omitempty"`
	Enemy      string       `json:"enemy,omitempty"`
}

// Notification payloads.
type (
	Ended struct {
		DialogueID string
	}
	InsufficientResources struct {
		Index    int
		Requires map[string]float64
	}
	RiskFailed struct {
		Message string
	}
	CombatStart struct {
		DialogueID string
		Enemy      string
		OnWin      string
		OnLose     string
	}
)

// Engine is the dialogue state machine.
type Engine struct {
	graphs map[string]*content.DialogueGraph
	flags  FlagSetter
	rng    entropy.Source
	bus    *bus.Bus

	graph *content.DialogueGraph
	node  *content.DialogueNode
}

// New creates an inactive engine over graphs.
func New(graphs map[string]*content.DialogueGraph, flags FlagSetter, rng entropy.Source, b *bus.Bus) *Engine {
	return &Engine{graphs: graphs, flags: flags, rng: rng, bus: b}
}

// Has reports whether a graph with id is loaded.
func (e *Engine) Has(id string) bool {
	_, ok := e.graphs[id]
	return ok && id != ""
}

// Active reports whether a dialogue is running.
func (e *Engine) Active() bool {
	return e.graph != nil
}

// Start opens dialogue id at its start node, applying the node's effects.
func (e *Engine) Start(id string, ledger Ledger) error {
	const op = "start dialogue"
	if e.Active() {
		return simerr.Rejected(op, "dialogue %s already active", e.graph.ID)
	}
	g, ok := e.graphs[id]
	if !ok {
		slog.Warn("dialogue not found", "dialogue", id)
		return simerr.NotFound(op, "dialogue", id)
	}
	n, ok := g.Node(g.StartNode)
	if !ok {
		slog.Warn("dialogue start node not found", "dialogue", id, "node", g.StartNode)
		return simerr.NotFound(op, "node", g.StartNode)
	}

	e.graph, e.node = g, n
	e.applyEffects(n.Effects, ledger)
	view, _ := e.View(ledger)
	e.bus.Publish(bus.DialogueStart, view)
	return nil
}

// SelectChoice resolves choice idx on the active node.
func (e *Engine) SelectChoice(idx int, ledger Ledger) error {
	const op = "select dialogue choice"
	if !e.Active() {
		return simerr.Rejected(op, "no active dialogue")
	}
	if idx < 0 || idx >= len(e.node.Choices) {
		return simerr.Rejected(op, "choice %d out of range", idx)
	}
	ch := e.node.Choices[idx]
	if len(ch.Requires) > 0 && !ledger.HasEnough(ch.Requires) {
		e.bus.Publish(bus.DialogueInsufficientResources, InsufficientResources{Index: idx, Requires: ch.Requires})
		return simerr.Rejected(op, "insufficient resources")
	}

	e.applyEffects(ch.Effects, ledger)

	if ch.SkillCheck != nil {
		success := ch.SkillCheck.Roll(e.rng, ledger.Get(resources.Population))
		target := ch.Failure
		if success {
			target = ch.Success
		}
		slog.Debug("skill check", "skill", ch.SkillCheck.Skill, "threshold", ch.SkillCheck.Threshold, "success", success)
		e.moveToNode(target, ledger)
		return nil
	}

	if ch.Risk != nil {
		success := e.rng.Float64() >= *ch.Risk
		if success {
			e.applyEffects(ch.SuccessEffects, ledger)
		} else {
			e.applyEffects(ch.FailureEffects, ledger)
			if ch.FailureMessage != "" {
				e.bus.Publish(bus.DialogueRiskFailed, RiskFailed{Message: ch.FailureMessage})
			}
		}
	}

	if ch.Next == "" {
		e.End()
		return nil
	}
	e.moveToNode(ch.Next, ledger)
	return nil
}

// ResolveCombat continues a dialogue paused on a combat node.
func (e *Engine) ResolveCombat(won bool, ledger Ledger) error {
	const op = "resolve combat"
	if !e.Active() || e.node.Action != content.ActionStartCombat {
		return simerr.Rejected(op, "no combat in progress")
	}
	target := e.node.OnLose
	if won {
		target = e.node.OnWin
	}
	e.moveToNode(target, ledger)
	return nil
}

// moveToNode positions the engine on id. An unknown id ends the dialogue.
func (e *Engine) moveToNode(id string, ledger Ledger) {
	n, ok := e.graph.Node(id)
	if !ok {
		slog.Warn("dialogue node not found, ending dialogue", "dialogue", e.graph.ID, "node", id)
		e.End()
		return
	}
	e.node = n

	if n.Action == content.ActionStartCombat {
		e.bus.Publish(bus.DialogueCombatStart, CombatStart{
			DialogueID: e.graph.ID,
			Enemy:      n.Enemy,
			OnWin:      n.OnWin,
			OnLose:     n.OnLose,
		})
		return
	}

	e.applyEffects(n.Effects, ledger)
	if n.End {
		e.End()
		return
	}
	view, _ := e.View(ledger)
	e.bus.Publish(bus.DialogueContinue, view)
}

// End clears the active dialogue. Ending an inactive engine is a no-op.
func (e *Engine) End() {
	if !e.Active() {
		return
	}
	id := e.graph.ID
	e.graph, e.node = nil, nil
	e.bus.Publish(bus.DialogueEnd, Ended{DialogueID: id})
}

// View describes the active node. ledger may be nil, in which case every
// choice with requirements is reported unavailable.
func (e *Engine) View(ledger Ledger) (View, bool) {
	if !e.Active() {
		return View{}, false
	}
	return View{
		DialogueID: e.graph.ID,
		NodeID:     e.node.ID,
		Speaker:    e.node.Speaker,
		Portrait:   e.node.Portrait,
		Text:       e.node.Text,
		Choices:    AvailableChoices(e.node, ledger),
		InCombat:   e.node.Action == content.ActionStartCombat,
		Enemy:      e.node.Enemy,
	}, true
}

// AvailableChoices marks which of node's choices the ledger can afford.
func AvailableChoices(node *content.DialogueNode, ledger Ledger) []ChoiceView {
	out := make([]ChoiceView, len(node.Choices))
	for i, ch := range node.Choices {
		out[i] = ChoiceView{
			Index:     i,
			Text:      ch.Text,
			Requires:  ch.Requires,
			Available: len(ch.Requires) == 0 || (ledger != nil && ledger.HasEnough(ch.Requires)),
		}
	}
	return out
}

func (e *Engine) applyEffects(fx content.Effects, ledger Ledger) {
	ledger.Apply(fx.Deltas)
	if fx.Flag != "" && e.flags != nil {
		e.flags.SetFlag(fx.Flag)
	}
	if fx.Lore != "" {
		e.bus.Publish(bus.LoreUnlocked, content.LoreUnlocked{LoreID: fx.Lore})
	}
}
