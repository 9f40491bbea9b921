// Package signingError holds the error taxonomy shared by the signer backends,
// the transaction canonicalizer and the signing service.
//
// Every per-request failure is an *Error carrying a Kind (which stage failed)
// and an optional Reason sentinel (why it failed). Both participate in
// errors.Is, so callers can match either:
//
//	errors.Is(err, signingError.ErrKeystoreDecryption)
//	signingError.KindOf(err) == signingError.KindBackendResolution
//
// Messages must never contain key material.
package signingError

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindConfiguration     Kind = "configuration"
	KindInvalidRpcMethod  Kind = "invalid_rpc_method"
	KindBuildTransaction  Kind = "build_transaction"
	KindBackendResolution Kind = "backend_resolution"
	KindSigning           Kind = "signing"
	KindEncoding          Kind = "encoding"
)

func (k Kind) String() string {
	return string(k)
}

// Reasons
var (
	ErrRequiredConfigKeyNotFound = errors.New("required config key not found")
	ErrInvalidSignerType         = errors.New("invalid signer type")

	ErrInvalidKeyFormat       = errors.New("invalid key format")
	ErrInvalidMnemonic        = errors.New("invalid mnemonic")
	ErrKeystoreDecryption     = errors.New("keystore decryption failed")
	ErrKmsConnection          = errors.New("kms connection failed")
	ErrKmsAuthorization       = errors.New("kms authorization failed")
	ErrUnsupportedBackendKind = errors.New("unsupported backend kind")

	ErrMissingField               = errors.New("missing required field")
	ErrAmbiguousTransactionKind   = errors.New("ambiguous transaction kind")
	ErrUnsupportedTransactionType = errors.New("unsupported transaction type")
	ErrChainIDMismatch            = errors.New("chain id mismatch")
	ErrInvalidField               = errors.New("invalid field")

	ErrSignerAddressMismatch = errors.New("no signer for address")
)

type Error struct {
	Kind   Kind
	Reason error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason.Error())
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Is matches another *Error by Kind when the target carries no Reason, and by
// Kind and Reason otherwise.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == nil || t.Reason == e.Reason
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func New(kind Kind, reason error, detail string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Detail: detail, Err: err}
}

func Configuration(reason error, detail string) *Error {
	return New(KindConfiguration, reason, detail, nil)
}

func InvalidRpcMethod(method string) *Error {
	return New(KindInvalidRpcMethod, nil, fmt.Sprintf("invalid rpc method '%s'", method), nil)
}

func BuildTransaction(reason error, detail string) *Error {
	return New(KindBuildTransaction, reason, detail, nil)
}

func BackendResolution(reason error, detail string, err error) *Error {
	return New(KindBackendResolution, reason, detail, err)
}

func Signing(reason error, detail string, err error) *Error {
	return New(KindSigning, reason, detail, err)
}

func Encoding(detail string, err error) *Error {
	return New(KindEncoding, nil, detail, err)
}

// AsBackendResolution keeps an existing *Error untouched and wraps anything
// else as a backend resolution failure.
func AsBackendResolution(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return BackendResolution(nil, "", err)
}
