package intenttree

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// Node is one point of the merged conversation space: the position reached after a sequence
// of labels. Node methods do not lock; use them directly only when no other goroutine touches
// the tree, and go through Tree otherwise.
type Node struct {
	label    Label
	phrases  map[string]struct{}
	children map[Label]*Node
}

func newNode(label Label) *Node {
	return &Node{
		label:    label,
		phrases:  make(map[string]struct{}),
		children: make(map[Label]*Node),
	}
}

func (n *Node) Label() Label { return n.label }

// LookupChild returns the child reached by label, or nil.
func (n *Node) LookupChild(label Label) *Node {
	return n.children[label]
}

var errChildExists = errors.New("child with this label already exists")

// AddChild creates the child for label. It fails if one already exists, leaving it untouched.
func (n *Node) AddChild(label Label) (*Node, error) {
	if _, ok := n.children[label]; ok {
		return nil, errChildExists
	}
	child := newNode(label)
	n.children[label] = child
	return child, nil
}

// RegisterPhrase records text on the node. Registering the same text again has no effect.
func (n *Node) RegisterPhrase(text string) {
	n.phrases[text] = struct{}{}
}

// Phrases returns the distinct registered texts in ascending order.
func (n *Node) Phrases() []string {
	out := make([]string, 0, len(n.phrases))
	for p := range n.phrases {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Children returns the child nodes in export order.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].label.Less(out[j].label) })
	return out
}

// Tree is the intent tree shared by concurrent dialog traversals.
// Every mutation runs inside a single exclusive section, so two traversals that reach a new
// label under the same node converge on one child.
type Tree struct {
	mu   sync.Mutex
	root *Node
}

func NewTree() *Tree {
	return &Tree{root: newNode(RootLabel)}
}

// Root returns the cursor every traversal starts from.
func (t *Tree) Root() *Node { return t.root }

// Descend finds or creates the child of node for label, registers text on it and returns it
// as the next cursor.
func (t *Tree) Descend(node *Node, label Label, text string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	child := node.LookupChild(label)
	if child == nil {
		// Cannot fail: the lookup above ran under the same lock.
		child, _ = node.AddChild(label)
	}
	child.RegisterPhrase(text)
	return child
}

// Export converts the tree into plain records. The root is not included; the result is its replies.
// Siblings are ordered by Label.Less: the no-intent record first, then intents ascending by
// name, then the bot record last. Phrases are ascending.
func (t *Tree) Export() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return exportChildren(t.root)
}

func exportChildren(n *Node) []Record {
	children := n.Children()
	out := make([]Record, 0, len(children))
	for _, c := range children {
		out = append(out, Record{
			IsBot:   c.label.IsBot(),
			Intent:  c.label.Intent(),
			Phrases: c.Phrases(),
			Replies: exportChildren(c),
		})
	}
	return out
}

// Record is the exported form of one tree node.
type Record struct {
	IsBot   bool
	Intent  *string
	Phrases []string
	Replies []Record
}

// botRecord and userRecord fix the key order (alphabetical) and keep "intent" off bot records.
// A user record with no resolved intent carries "intent": null.
type botRecord struct {
	IsBot   bool     `json:"is_bot"`
	Phrases []string `json:"phrases"`
	Replies []Record `json:"replies"`
}

type userRecord struct {
	Intent  *string  `json:"intent"`
	IsBot   bool     `json:"is_bot"`
	Phrases []string `json:"phrases"`
	Replies []Record `json:"replies"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	phrases := r.Phrases
	if phrases == nil {
		phrases = []string{}
	}
	replies := r.Replies
	if replies == nil {
		replies = []Record{}
	}
	if r.IsBot {
		return marshalUnescaped(botRecord{IsBot: true, Phrases: phrases, Replies: replies})
	}
	return marshalUnescaped(userRecord{Intent: r.Intent, IsBot: false, Phrases: phrases, Replies: replies})
}

// marshalUnescaped keeps <, > and & literal; the enclosing encoder cannot undo escaping done here.
func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw userRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = Record{IsBot: raw.IsBot, Intent: raw.Intent, Phrases: raw.Phrases, Replies: raw.Replies}
	return nil
}
