package coex

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// CorpusEntry is one persisted tested input.
type CorpusEntry struct {
	Args      []uint64 `cbor:"args"`
	Widths    []uint   `cbor:"widths"`
	Signature string   `cbor:"sig"`
}

// ArgExprs returns the entry's arguments as constant expressions.
func (e *CorpusEntry) ArgExprs() []*ConstantExpr {
	args := make([]*ConstantExpr, len(e.Args))
	for i, value := range e.Args {
		args[i] = NewConstantExpr(value, e.Widths[i])
	}
	return args
}

// Corpus is a set of tested inputs keyed by path signature, persisted in
// CBOR so later fuzz sessions can reseed from earlier ones. Not safe for
// concurrent use.
type Corpus struct {
	entries []*CorpusEntry
	seen    map[string]struct{}
}

// NewCorpus returns an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{seen: make(map[string]struct{})}
}

// Add records an input under its path signature.
// Returns false if the signature is already present.
func (c *Corpus) Add(args []*ConstantExpr, signature string) bool {
	if _, ok := c.seen[signature]; ok {
		return false
	}
	c.seen[signature] = struct{}{}

	entry := &CorpusEntry{
		Args:      make([]uint64, len(args)),
		Widths:    make([]uint, len(args)),
		Signature: signature,
	}
	for i, arg := range args {
		entry.Args[i] = arg.Value
		entry.Widths[i] = arg.Width
	}
	c.entries = append(c.entries, entry)
	return true
}

// Len returns the number of entries.
func (c *Corpus) Len() int {
	return len(c.entries)
}

// Entries returns all entries in insertion order.
func (c *Corpus) Entries() []*CorpusEntry {
	return c.entries
}

// SaveFile writes the corpus to path.
func (c *Corpus) SaveFile(path string) error {
	buf, err := cbor.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("marshal corpus: %w", err)
	}
	return os.WriteFile(path, buf, 0o644)
}

// LoadCorpusFile reads a corpus previously written with SaveFile.
// A missing file yields an empty corpus.
func LoadCorpusFile(path string) (*Corpus, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewCorpus(), nil
	} else if err != nil {
		return nil, err
	}

	var entries []*CorpusEntry
	if err := cbor.Unmarshal(buf, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal corpus: %w", err)
	}

	c := NewCorpus()
	for _, entry := range entries {
		if len(entry.Args) != len(entry.Widths) {
			return nil, fmt.Errorf("corpus entry %q: %d args, %d widths", entry.Signature, len(entry.Args), len(entry.Widths))
		}
		if _, ok := c.seen[entry.Signature]; ok {
			continue
		}
		c.seen[entry.Signature] = struct{}{}
		c.entries = append(c.entries, entry)
	}
	return c, nil
}
