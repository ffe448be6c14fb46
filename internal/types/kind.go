package types

import (
	"strings"
	"sync"
)

// Kind names the relationship between a subject and a location. Kinds are an
// open, string-keyed enumeration; KindFor interns names so that kinds built by
// different contributors compare equal.
type Kind string

// Attribute names a piece of per-subject metadata
type Attribute string

const (
	KindDefinesType             Kind = "defines-type"
	KindDefinesFunction         Kind = "defines-function"
	KindDefinesVariable         Kind = "defines-variable"
	KindIsReferencedBy          Kind = "is-referenced-by"
	KindIsReferencedByQualified Kind = "is-referenced-by-qualified"
	KindIsInvokedBy             Kind = "is-invoked-by"
	KindIsInvokedByQualified    Kind = "is-invoked-by-qualified"
	KindIsReadBy                Kind = "is-read-by"
	KindIsWrittenBy             Kind = "is-written-by"
	KindIsExtendedBy            Kind = "is-extended-by"
	KindIsImplementedBy         Kind = "is-implemented-by"
	KindIsMixedInBy             Kind = "is-mixed-in-by"
	KindAngularReference        Kind = "angular-reference"
)

const (
	AttributeDisplayName Attribute = "display-name"
	AttributeSignature   Attribute = "signature"
	AttributeExported    Attribute = "exported"
)

var (
	kindMu       sync.RWMutex
	kindRegistry = map[string]Kind{}
)

func init() {
	for _, k := range BuiltinKinds() {
		kindRegistry[string(k)] = k
	}
}

// BuiltinKinds lists the predefined relationship kinds
func BuiltinKinds() []Kind {
	return []Kind{
		KindDefinesType,
		KindDefinesFunction,
		KindDefinesVariable,
		KindIsReferencedBy,
		KindIsReferencedByQualified,
		KindIsInvokedBy,
		KindIsInvokedByQualified,
		KindIsReadBy,
		KindIsWrittenBy,
		KindIsExtendedBy,
		KindIsImplementedBy,
		KindIsMixedInBy,
		KindAngularReference,
	}
}

// KindFor returns the canonical Kind for name, registering it on first use.
// The empty name yields the unset Kind.
func KindFor(name string) Kind {
	if name == "" {
		return ""
	}
	kindMu.RLock()
	k, ok := kindRegistry[name]
	kindMu.RUnlock()
	if ok {
		return k
	}

	kindMu.Lock()
	defer kindMu.Unlock()
	if k, ok := kindRegistry[name]; ok {
		return k
	}
	k = Kind(strings.Clone(name))
	kindRegistry[name] = k
	return k
}

// KnownKinds returns every kind registered so far, builtins first
func KnownKinds() []Kind {
	kindMu.RLock()
	defer kindMu.RUnlock()
	out := BuiltinKinds()
	seen := make(map[Kind]bool, len(out))
	for _, k := range out {
		seen[k] = true
	}
	for _, k := range kindRegistry {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}

// IsBuiltin reports whether k is one of the predefined kinds
func (k Kind) IsBuiltin() bool {
	for _, b := range BuiltinKinds() {
		if k == b {
			return true
		}
	}
	return false
}
