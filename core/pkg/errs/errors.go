package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidateBadRequest error = errors.New("struct validation error")

	ErrCANotFound      error = errors.New("CA not found")
	ErrCAAlreadyExists error = errors.New("CA already exists")
	ErrCAType          error = errors.New("CA type inconsistent")
	ErrCAHasChildren   error = errors.New("CA still has child CAs")

	ErrKeyPairNotFound           error = errors.New("key pair not found")
	ErrKeyPairStatusTransition   error = errors.New("key pair status transition not allowed")
	ErrKeyPairNotRemovable       error = errors.New("key pair still holds an incoming certificate")
	ErrNoCurrentKeyPair          error = errors.New("CA has no current key pair")
	ErrPublicKeyNotFound         error = errors.New("public key not found")
	ErrCertificateNotFound       error = errors.New("certificate not found")
	ErrPublishedObjectTransition error = errors.New("published object status transition not allowed")

	ErrCryptoEngineNotFound error = errors.New("crypto engine not found")
	ErrKeyNotFound          error = errors.New("key not found")

	// Command outcomes
	ErrNoEffect                        error = errors.New("command had no effect")
	ErrConcurrentModification          error = errors.New("CA was modified concurrently")
	ErrResourceLimitExceeded           error = errors.New("resource limit exceeded")
	ErrInvariantViolation              error = errors.New("invariant violation")
	ErrNotHolderOfResources            error = errors.New("not holder of requested resources")
	ErrInvalidState                    error = errors.New("invalid state")
	ErrResourceInformationNotAvailable error = errors.New("resource information not available")
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNoEffect
	KindConcurrentModification
	KindResourceLimitExceeded
	KindInvariantViolation
	KindNotHolderOfResources
	KindInvalidState
	KindResourceInformationNotAvailable
	KindNotFound
	KindValidation
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                         "Unknown",
	KindNoEffect:                        "NoEffect",
	KindConcurrentModification:          "ConcurrentModification",
	KindResourceLimitExceeded:           "ResourceLimitExceeded",
	KindInvariantViolation:              "InvariantViolation",
	KindNotHolderOfResources:            "NotHolderOfResources",
	KindInvalidState:                    "InvalidState",
	KindResourceInformationNotAvailable: "ResourceInformationNotAvailable",
	KindNotFound:                        "NotFound",
	KindValidation:                      "Validation",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

var kindSentinels = map[ErrorKind]error{
	KindNoEffect:                        ErrNoEffect,
	KindConcurrentModification:          ErrConcurrentModification,
	KindResourceLimitExceeded:           ErrResourceLimitExceeded,
	KindInvariantViolation:              ErrInvariantViolation,
	KindNotHolderOfResources:            ErrNotHolderOfResources,
	KindInvalidState:                    ErrInvalidState,
	KindResourceInformationNotAvailable: ErrResourceInformationNotAvailable,
	KindValidation:                      ErrValidateBadRequest,
}

// CommandError is a rejected command together with the context an operator
// needs to diagnose it.
type CommandError struct {
	Op      string
	Kind    ErrorKind
	CAID    uint
	Err     error
	Details map[string]interface{}
}

func (e *CommandError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.CAID != 0 {
		fmt.Fprintf(&sb, " [ca=%d]", e.CAID)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	for k, v := range e.Details {
		fmt.Fprintf(&sb, " %s=%v", k, v)
	}
	return sb.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the error kind, so that errors.Is works with
// both the wrapped cause and the kind.
func (e *CommandError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

func New(op string, kind ErrorKind, caID uint, err error) *CommandError {
	if err == nil {
		err = kindSentinels[kind]
	}
	return &CommandError{Op: op, Kind: kind, CAID: caID, Err: err}
}

func (e *CommandError) WithDetail(key string, value interface{}) *CommandError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first CommandError in the chain. Plain
// sentinels are mapped to their kind as well.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind
	}

	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	switch {
	case errors.Is(err, ErrCANotFound), errors.Is(err, ErrKeyPairNotFound), errors.Is(err, ErrPublicKeyNotFound), errors.Is(err, ErrCertificateNotFound):
		return KindNotFound
	case errors.Is(err, ErrKeyPairStatusTransition), errors.Is(err, ErrPublishedObjectTransition), errors.Is(err, ErrNoCurrentKeyPair), errors.Is(err, ErrCAType):
		return KindInvalidState
	case errors.Is(err, ErrCAAlreadyExists), errors.Is(err, ErrCAHasChildren):
		return KindValidation
	}

	return KindUnknown
}
