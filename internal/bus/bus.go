// Package bus provides the publish/subscribe service that carries notifications
// from the simulation to its observers. One Bus is owned by the simulation and
// injected into each sub-system; there is no package-level instance.
package bus

// Channel names a notification stream.
type Channel string

// Notification channels consumed by the presentation layer.
const (
	ResourcesUpdated Channel = "resources:updated"

	BuildingPlaced                Channel = "building:placed"
	BuildingPlacementStarted      Channel = "building:placement_started"
	BuildingPlacementCancelled    Channel = "building:placement_cancelled"
	BuildingInsufficientResources Channel = "building:insufficient_resources"
	BuildingWorkersChanged        Channel = "building:workers_changed"
	BuildingUpgraded              Channel = "building:upgraded"

	EventTriggered  Channel = "event:triggered"
	EventSeasonal   Channel = "event:seasonal"
	EventStarvation Channel = "event:starvation"

	DialogueStart                 Channel = "dialogue:start"
	DialogueContinue              Channel = "dialogue:continue"
	DialogueEnd                   Channel = "dialogue:end"
	DialogueInsufficientResources Channel = "dialogue:insufficient_resources"
	DialogueRiskFailed            Channel = "dialogue:risk_failed"
	DialogueCombatStart           Channel = "dialogue:combat_start"

	CreatureSpawned     Channel = "creature:spawned"
	CreatureRemoved     Channel = "creature:removed"
	CreatureInteraction Channel = "creature:interaction"

	SeasonChanged Channel = "season:changed"
	LoreUnlocked  Channel = "lore:unlocked"
	EraAdvanced   Channel = "era:advanced"

	GameOver    Channel = "game:over"
	GameStarted Channel = "game:started"
	GameLoaded  Channel = "game:loaded"
	GameSaved   Channel = "game:saved"
)

// Message is a single published notification.
type Message struct {
	Channel Channel
	Payload any
}

// Handler receives notifications. Handlers must not call back into the
// simulation synchronously.
type Handler func(Message)

type subscription struct {
	id      int
	handler Handler
}

// Bus fans out published messages to subscribers in subscription order.
// It is not safe for concurrent use; the simulation is single-threaded.
type Bus struct {
	subs   map[Channel][]subscription
	all    []subscription
	nextID int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Channel][]subscription)}
}

// Subscribe registers h for ch and returns a function that removes it.
func (b *Bus) Subscribe(ch Channel, h Handler) func() {
	b.nextID++
	id := b.nextID
	b.subs[ch] = append(b.subs[ch], subscription{id: id, handler: h})
	return func() {
		b.subs[ch] = remove(b.subs[ch], id)
	}
}

// SubscribeAll registers h for every channel.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: h})
	return func() {
		b.all = remove(b.all, id)
	}
}

// Publish delivers payload to every subscriber of ch. A nil Bus drops the message.
func (b *Bus) Publish(ch Channel, payload any) {
	if b == nil {
		return
	}
	msg := Message{Channel: ch, Payload: payload}
	// Copy so handlers may unsubscribe during delivery.
	for _, s := range append([]subscription(nil), b.subs[ch]...) {
		s.handler(msg)
	}
	for _, s := range append([]subscription(nil), b.all...) {
		s.handler(msg)
	}
}

func remove(subs []subscription, id int) []subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
