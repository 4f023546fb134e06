package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	language "github.com/hanpama/graphstore/internal/language"
)

var (
	ErrMissingKind      = errors.New("artifact: missing kind")
	ErrMissingSelection = errors.New("artifact: missing selection")
	ErrKindMismatch     = errors.New("artifact: document kind does not match raw text")
)

// Decode reads one JSON-encoded artifact. A missing hash is derived from the
// raw document text.
func Decode(r io.Reader) (*Artifact, error) {
	var a Artifact
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("artifact: decode: %w", err)
	}
	if a.Hash == "" {
		a.Hash = HashRaw(a.Raw)
	}
	return &a, nil
}

// Load decodes the artifact stored at path.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// HashRaw returns the hex-encoded SHA-256 of a document's text.
func HashRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Validate checks the structural requirements the runtime relies on. When raw
// text is present it must parse, and for operations its kind must agree with
// the declared kind.
func (a *Artifact) Validate() error {
	switch a.Kind {
	case KindQuery, KindMutation, KindSubscription, KindFragment:
	case "":
		return ErrMissingKind
	default:
		return fmt.Errorf("artifact: unknown kind %q", a.Kind)
	}
	if a.Kind != KindFragment && a.RootType == "" {
		return fmt.Errorf("artifact %s: missing root type", a.Name)
	}
	if a.Kind != KindFragment && a.Selection == nil {
		return ErrMissingSelection
	}
	if a.Policy != "" && !a.Policy.Valid() {
		return fmt.Errorf("artifact: unknown cache policy %q", a.Policy)
	}
	if a.Raw == "" {
		return nil
	}
	doc, err := language.ParseQuery(a.Raw)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", a.Name, err)
	}
	if a.Kind == KindFragment {
		if len(doc.Fragments) == 0 {
			return fmt.Errorf("%w: %s has no fragment definition", ErrKindMismatch, a.Name)
		}
		return nil
	}
	op := language.PrimaryOperation(doc, a.Name)
	if op == nil {
		return fmt.Errorf("artifact %s: no operation found in raw text", a.Name)
	}
	if want := operationFor(a.Kind); op.Operation != want {
		return fmt.Errorf("%w: %s declares %s, raw text is a %s", ErrKindMismatch, a.Name, a.Kind, op.Operation)
	}
	return nil
}

func operationFor(k Kind) language.Operation {
	switch k {
	case KindMutation:
		return language.Mutation
	case KindSubscription:
		return language.Subscription
	default:
		return language.Query
	}
}
