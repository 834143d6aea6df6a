package dialog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one follow-up question of a symptom: the spoken prefix and the
// candidate factors offered as options.
type Entry struct {
	Prefix  string
	Factors []string
}

type Symptom struct {
	Name    string
	Aliases []string
	Dialogs []Entry
}

// Tree is the static symptom dialog tree. Symptoms and their entries keep the
// order of the source document. A Tree is never mutated after loading.
type Tree struct {
	Symptoms []Symptom
}

// Lookup finds a symptom by exact (case-insensitive) name.
func (t *Tree) Lookup(name string) *Symptom {
	for i := range t.Symptoms {
		if strings.EqualFold(t.Symptoms[i].Name, strings.TrimSpace(name)) {
			return &t.Symptoms[i]
		}
	}
	return nil
}

func (t *Tree) Names() []string {
	names := make([]string, 0, len(t.Symptoms))
	for _, s := range t.Symptoms {
		names = append(names, s.Name)
	}
	return names
}

func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dialog tree: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a dialog tree document. JSON is accepted as a YAML subset:
//
//	{"Headache": {"aliases": ["migraine"], "dialogs": {"Is your headache": ["Dull", "Throbbing"]}}}
//
// Decoding goes through yaml.Node so mapping order survives.
func Decode(r io.Reader) (*Tree, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode dialog tree: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 {
		return nil, errors.New("decode dialog tree: empty document")
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("decode dialog tree: line %d: want mapping of symptoms", doc.Line)
	}

	tree := &Tree{}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		s, err := decodeSymptom(doc.Content[i].Value, doc.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("decode dialog tree: %w", err)
		}
		tree.Symptoms = append(tree.Symptoms, s)
	}
	if len(tree.Symptoms) == 0 {
		return nil, errors.New("decode dialog tree: no symptoms")
	}
	return tree, nil
}

func decodeSymptom(name string, n *yaml.Node) (Symptom, error) {
	s := Symptom{Name: name}
	if n.Kind != yaml.MappingNode {
		return s, fmt.Errorf("symptom %q: line %d: want mapping", name, n.Line)
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		switch key {
		case "aliases":
			if err := val.Decode(&s.Aliases); err != nil {
				return s, fmt.Errorf("symptom %q aliases: %w", name, err)
			}
		case "dialogs":
			entries, err := decodeEntries(val)
			if err != nil {
				return s, fmt.Errorf("symptom %q: %w", name, err)
			}
			s.Dialogs = entries
		}
	}
	return s, nil
}

func decodeEntries(n *yaml.Node) ([]Entry, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("dialogs: line %d: want mapping", n.Line)
	}

	entries := make([]Entry, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		e := Entry{Prefix: n.Content[i].Value}
		val := n.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			e.Factors = []string{val.Value}
		case yaml.SequenceNode:
			if err := val.Decode(&e.Factors); err != nil {
				return nil, fmt.Errorf("dialog %q: %w", e.Prefix, err)
			}
		default:
			return nil, fmt.Errorf("dialog %q: line %d: want list of factors", e.Prefix, val.Line)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
