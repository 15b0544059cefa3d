package iface

// PrimaryParentEvent is published whenever this node's RPL preferred
// parent changes (spec.md section 6.1's D-Bus-exposed
// PrimaryParentChanged signal, restated as a Go channel contract).
type PrimaryParentEvent struct {
	EUI64 [8]byte
}

// Management is the management-plane collaborator contract
// (SPEC_FULL.md section 6.1): in the source this is exposed over
// D-Bus; here it's a plain Go interface so a real D-Bus binding and a
// test double ([NoopManagement]) can both satisfy it. HwAddress, PanID,
// and Gaks answer the management plane's read-only property queries;
// NotifyPrimaryParent/Subscribe carry the one signal this core
// produces.
type Management interface {
	HwAddress() [8]byte
	PanID() uint16
	Gaks() [][]byte

	// NotifyPrimaryParent publishes ev to every Subscribe channel.
	NotifyPrimaryParent(ev PrimaryParentEvent)

	// Subscribe returns a channel of preferred-parent-change events.
	// Each call returns an independent channel.
	Subscribe() <-chan PrimaryParentEvent
}

// NoopManagement is a [Management] with no real D-Bus binding: queries
// return zero values, and Subscribe channels are sent to but never
// read by a collaborator. Grounded on the pack's no-op-collaborator
// idiom ([rcp.Fake] and AdGuardHome's internal/aghnet.Empty-shaped
// stand-ins).
type NoopManagement struct {
	subs []chan PrimaryParentEvent
}

// NewNoopManagement returns a NoopManagement with no subscribers.
func NewNoopManagement() *NoopManagement { return &NoopManagement{} }

// HwAddress implements [Management].
func (*NoopManagement) HwAddress() [8]byte { return [8]byte{} }

// PanID implements [Management].
func (*NoopManagement) PanID() uint16 { return 0 }

// Gaks implements [Management].
func (*NoopManagement) Gaks() [][]byte { return nil }

// NotifyPrimaryParent implements [Management]; delivery is
// best-effort, matching a D-Bus signal's fire-and-forget semantics.
func (m *NoopManagement) NotifyPrimaryParent(ev PrimaryParentEvent) {
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe implements [Management].
func (m *NoopManagement) Subscribe() <-chan PrimaryParentEvent {
	ch := make(chan PrimaryParentEvent, 1)
	m.subs = append(m.subs, ch)

	return ch
}
