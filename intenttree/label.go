package intenttree

// LabelKind distinguishes classifier output from the reserved tree markers.
type LabelKind uint8

const (
	// KindIntent is a named intent returned by a classifier.
	KindIntent LabelKind = iota
	// KindNone is a user turn the classifier could not assign an intent to.
	KindNone
	// KindBot marks a deterministic bot turn; bot turns never reach a classifier.
	KindBot
	// KindRoot is reserved for the tree root and is never exported.
	KindRoot
)

// Label is the grouping key of a tree node. It is comparable and safe to use as a map key.
// The kind keeps the reserved markers apart from anything a classifier can return.
type Label struct {
	Kind LabelKind
	Name string
}

var (
	// NoIntent groups every user turn without a resolved intent.
	NoIntent = Label{Kind: KindNone}
	// BotLabel is assigned to every bot turn.
	BotLabel = Label{Kind: KindBot, Name: "DETERMINISTIC_BOT_INTENT"}
	// RootLabel identifies the tree root.
	RootLabel = Label{Kind: KindRoot, Name: "ROOT_INTENT"}
)

// IntentLabel returns the label for a classifier intent name. An empty name means no intent.
func IntentLabel(name string) Label {
	if name == "" {
		return NoIntent
	}
	return Label{Kind: KindIntent, Name: name}
}

func (l Label) IsBot() bool { return l.Kind == KindBot }

// Intent returns the exported intent value: nil when no intent was found.
func (l Label) Intent() *string {
	if l.Kind != KindIntent {
		return nil
	}
	name := l.Name
	return &name
}

func (l Label) String() string {
	switch l.Kind {
	case KindNone:
		return "<none>"
	default:
		return l.Name
	}
}

// Less orders labels for export: no-intent first, then intents by name, then bot turns.
func (l Label) Less(other Label) bool {
	if r, o := exportRank(l.Kind), exportRank(other.Kind); r != o {
		return r < o
	}
	return l.Name < other.Name
}

func exportRank(k LabelKind) int {
	switch k {
	case KindNone:
		return 0
	case KindIntent:
		return 1
	case KindBot:
		return 2
	default:
		return 3
	}
}
