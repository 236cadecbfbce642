package persist

import (
	"context"
	"errors"
	"fmt"
)

// FaultKind is the store-independent classification of a failed store call.
type FaultKind string

const (
	// FaultUnknown is anything no rule recognises. It is never retried.
	FaultUnknown FaultKind = "unknown"
	// FaultVersionConflict means a competing writer already advanced the version.
	FaultVersionConflict FaultKind = "version_conflict"
	// FaultLockTimeout means the row was held beyond the store's wait threshold.
	FaultLockTimeout FaultKind = "lock_timeout"
	// FaultDuplicateKey means an insert collided with an existing identity.
	FaultDuplicateKey FaultKind = "duplicate_key"
	// FaultParentNotPersisted means a referenced record is not durable yet.
	FaultParentNotPersisted FaultKind = "parent_not_persisted"
	// FaultPropertyAccess is a transient error reading or writing record fields.
	FaultPropertyAccess FaultKind = "property_access"
	// FaultNotFound means the record is absent from the store.
	FaultNotFound FaultKind = "not_found"
	// FaultDetached means the record is unknown to the store's current view.
	FaultDetached FaultKind = "detached"
)

// Retryable reports whether faults of this kind may be requeued.
func (k FaultKind) Retryable() bool {
	return k != FaultUnknown && k != ""
}

// Sentinel errors store adapters wrap to report a fault directly.
var (
	ErrVersionConflict    = errors.New("version conflict")
	ErrLockTimeout        = errors.New("lock timeout")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrParentNotPersisted = errors.New("parent not persisted")
	ErrPropertyAccess     = errors.New("property access")
	ErrNotFound           = errors.New("record not found")
	ErrDetached           = errors.New("record detached")
)

// Fault tags an error with an explicit kind.
type Fault struct {
	Kind FaultKind
	Err  error
}

// NewFault wraps err with kind.
func NewFault(kind FaultKind, err error) *Fault {
	return &Fault{Kind: kind, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Rule inspects a single link of an error chain.
// It returns ok=false when it does not recognise the link.
type Rule func(err error) (kind FaultKind, ok bool)

// Is returns a rule matching a link that is exactly target.
func Is(target error, kind FaultKind) Rule {
	return func(err error) (FaultKind, bool) {
		if err == target {
			return kind, true
		}
		return "", false
	}
}

// DefaultRules recognise the persist sentinels, *Fault and context deadlines.
func DefaultRules() []Rule {
	return []Rule{
		func(err error) (FaultKind, bool) {
			if f, ok := err.(*Fault); ok && f.Kind != "" {
				return f.Kind, true
			}
			return "", false
		},
		Is(ErrVersionConflict, FaultVersionConflict),
		Is(ErrLockTimeout, FaultLockTimeout),
		Is(ErrDuplicateKey, FaultDuplicateKey),
		Is(ErrParentNotPersisted, FaultParentNotPersisted),
		Is(ErrPropertyAccess, FaultPropertyAccess),
		Is(ErrNotFound, FaultNotFound),
		Is(ErrDetached, FaultDetached),
		Is(context.DeadlineExceeded, FaultLockTimeout),
	}
}

// Classifier maps errors to fault kinds using an ordered rule list.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier. Store-specific rules are consulted
// before DefaultRules so adapters can refine the generic mapping.
func NewClassifier(rules ...Rule) *Classifier {
	all := make([]Rule, 0, len(rules)+9)
	all = append(all, rules...)
	all = append(all, DefaultRules()...)
	return &Classifier{rules: all}
}

// Classify walks the cause chain of err, outermost link first, and returns
// the kind of the first link any rule recognises.
func (c *Classifier) Classify(err error) FaultKind {
	if err == nil {
		return ""
	}
	for _, link := range causes(err) {
		for _, rule := range c.rules {
			if kind, ok := rule(link); ok {
				return kind
			}
		}
	}
	return FaultUnknown
}

// Has reports whether any link in the chain of err classifies as kind.
func (c *Classifier) Has(err error, kind FaultKind) bool {
	for _, link := range causes(err) {
		for _, rule := range c.rules {
			if k, ok := rule(link); ok {
				if k == kind {
					return true
				}
				break
			}
		}
	}
	return false
}

var defaultClassifier = NewClassifier()

// Classify uses the default rules only.
func Classify(err error) FaultKind {
	return defaultClassifier.Classify(err)
}

// maxCauseDepth bounds the walk in case an error chain loops back on itself.
const maxCauseDepth = 64

// causes flattens the error tree breadth first. It understands
// Unwrap() error, Unwrap() []error and the older Cause() error convention.
func causes(err error) []error {
	var (
		out   []error
		queue = []error{err}
	)
	for len(queue) > 0 && len(out) < maxCauseDepth {
		e := queue[0]
		queue = queue[1:]
		if e == nil {
			continue
		}
		out = append(out, e)

		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			queue = append(queue, u.Unwrap()...)
		case interface{ Unwrap() error }:
			queue = append(queue, u.Unwrap())
		case interface{ Cause() error }:
			queue = append(queue, u.Cause())
		}
	}
	return out
}
