package gateway

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindRaceCondition
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRaceCondition:
		return "race"
	case KindFatal:
		return "fatal"
	}
	return "???"
}

const (
	reasonInconsistentTips = "inconsistent tips pair selected"
	reasonInvalidSignature = "invalid signature"
	reasonInvalidBundle    = "invalid bundle"
)

// Error is returned by the node gateway. Kind is decided once, when the error is created
type Error struct {
	Op     string
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%v): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify wraps err returned by the node for operation op.
// Invalid signature is fatal for reattachment only: promotion never resubmits the bundle
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return err
	}
	msg := strings.ToLower(err.Error())
	ret := &Error{Op: op, Kind: KindTransient, Err: err}
	switch {
	case strings.Contains(msg, reasonInconsistentTips):
		ret.Kind = KindRaceCondition
		ret.Reason = reasonInconsistentTips
	case op == OpReattach && strings.Contains(msg, reasonInvalidSignature):
		ret.Kind = KindFatal
		ret.Reason = reasonInvalidSignature
	case op == OpReattach && strings.Contains(msg, reasonInvalidBundle):
		ret.Kind = KindFatal
		ret.Reason = reasonInvalidBundle
	}
	return ret
}

// KindOf returns kind of the error. Errors not produced by the gateway are transient
func KindOf(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindTransient
}

func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindFatal
}

func IsRace(err error) bool {
	return err != nil && KindOf(err) == KindRaceCondition
}

// NewFatal is used by gateway implementations which detect fatal conditions by other means
func NewFatal(op, reason string) error {
	return &Error{Op: op, Kind: KindFatal, Reason: reason, Err: errors.New(reason)}
}

// NewRace creates tip selection race error
func NewRace(op string) error {
	return &Error{Op: op, Kind: KindRaceCondition, Reason: reasonInconsistentTips, Err: errors.New(reasonInconsistentTips)}
}
