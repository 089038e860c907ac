package namespace

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	pebblestore "github.com/kainosnoema/remq/internal/storage/pebble"
)

// ErrInvalidName is returned for names that do not match the configured
// pattern.
var ErrInvalidName = errors.New("namespace: invalid name")

// Meta is the namespace record stored alongside its log.
type Meta struct {
	Name        string `json:"name"`
	CreatedAtMs int64  `json:"createdAtMs"`
	// Subjects is the live subject prefix published for this namespace.
	Subjects string `json:"subjects"`
}

var nsMetaPrefix = []byte("nsmeta/")

// nsMetaKey builds metadata key for a namespace.
func nsMetaKey(ns string) []byte {
	k := make([]byte, 0, len(nsMetaPrefix)+len(ns))
	k = append(k, nsMetaPrefix...)
	k = append(k, ns...)
	return k
}

// Validator checks namespace names against an anchored regular expression.
type Validator struct {
	re *regexp.Regexp
}

// NewValidator compiles expr, anchoring it to the whole name.
func NewValidator(expr string) (*Validator, error) {
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, fmt.Errorf("namespace: name pattern: %w", err)
	}
	return &Validator{re: re}, nil
}

// Validate returns ErrInvalidName unless name matches.
func (v *Validator) Validate(name string) error {
	if !v.re.MatchString(name) {
		return fmt.Errorf("%w: %q does not match %s", ErrInvalidName, name, v.re)
	}
	return nil
}

// EnsureNamespace creates a namespace meta record if absent, returning the effective meta.
// Idempotent: returns existing if already present.
func EnsureNamespace(db *pebblestore.DB, name string) (Meta, error) {
	key := nsMetaKey(name)
	b, err := db.Get(key)
	switch {
	case err == nil && len(b) > 0:
		var m Meta
		if err := json.Unmarshal(b, &m); err == nil {
			return m, nil
		}
		// fallthrough to rewrite if corrupted
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return Meta{}, err
	}
	m := Meta{
		Name:        name,
		CreatedAtMs: time.Now().UnixMilli(),
		Subjects:    "remq." + name + ".ch",
	}
	bytes, err := json.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := db.Set(key, bytes); err != nil {
		return Meta{}, err
	}
	return m, nil
}
