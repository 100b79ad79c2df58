package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/mpc"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/node"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrInvalidPublicKey   = errors.New("invalid public key")
	ErrDerivation         = errors.New("derivation failed")
	ErrEnvelope           = errors.New("malformed transaction envelope")
	ErrInvalidMnemonic    = errors.New("invalid mnemonic")
	ErrInvalidPrivateKey  = errors.New("invalid private key")
	ErrSigningFailed      = errors.New("signing failed")
	ErrSigningUnavailable = errors.New("signing capability absent")
	ErrPhraseConsumed     = errors.New("mnemonic phrase already retrieved")
	ErrKeySourceClosed    = errors.New("key source destroyed")
)

// ChainErrorKind classifies ChainError.
type ChainErrorKind int

const (
	// ChainInvalidPublicKey: public key bytes are malformed or not on the curve.
	ChainInvalidPublicKey ChainErrorKind = iota + 1
	// ChainDerivation: address derivation failed on a well-formed key.
	ChainDerivation
	// ChainOther: envelope shape mismatch during prepare/finalize.
	ChainOther
)

func (k ChainErrorKind) String() string {
	switch k {
	case ChainInvalidPublicKey:
		return "invalid public key"
	case ChainDerivation:
		return "derivation"
	case ChainOther:
		return "envelope"
	default:
		return "unknown"
	}
}

// ChainError is returned by Chain implementations.
type ChainError struct {
	Kind  ChainErrorKind
	Chain string
	Msg   string
	Err   error
}

func (e *ChainError) Error() string {
	msg := fmt.Sprintf("chain %s: %s", e.Chain, e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ChainError) Unwrap() error { return e.Err }

func (e *ChainError) Is(target error) bool {
	switch target {
	case ErrInvalidPublicKey:
		return e.Kind == ChainInvalidPublicKey
	case ErrDerivation:
		return e.Kind == ChainDerivation
	case ErrEnvelope:
		return e.Kind == ChainOther
	}
	return false
}

// KeySourceErrorKind classifies KeySourceError.
type KeySourceErrorKind int

const (
	// KeySourceInvalidMnemonic: wordlist or checksum validation failed.
	KeySourceInvalidMnemonic KeySourceErrorKind = iota + 1
	// KeySourceDerivation: bad path syntax, hardened step on a public-only
	// source, or curve arithmetic failure.
	KeySourceDerivation
)

func (k KeySourceErrorKind) String() string {
	switch k {
	case KeySourceInvalidMnemonic:
		return "invalid mnemonic"
	case KeySourceDerivation:
		return "derivation"
	default:
		return "unknown"
	}
}

// KeySourceError is returned by KeySource implementations.
type KeySourceError struct {
	Kind KeySourceErrorKind
	Msg  string
	Err  error
}

func (e *KeySourceError) Error() string {
	msg := "key source: " + e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeySourceError) Unwrap() error { return e.Err }

func (e *KeySourceError) Is(target error) bool {
	switch target {
	case ErrInvalidMnemonic:
		return e.Kind == KeySourceInvalidMnemonic
	case ErrDerivation:
		return e.Kind == KeySourceDerivation
	}
	return false
}

func derivationErr(msg string, err error) *KeySourceError {
	return &KeySourceError{Kind: KeySourceDerivation, Msg: msg, Err: err}
}

// SigningError reports which digest the signer failed on.
type SigningError struct {
	Index int
	Total int
	Err   error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing failed on digest %d of %d: %v", e.Index+1, e.Total, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

func (e *SigningError) Is(target error) bool { return target == ErrSigningFailed }

// Stage names a step of the send pipeline.
type Stage string

const (
	StageCreate    Stage = "create"
	StagePrepare   Stage = "prepare"
	StageSign      Stage = "sign"
	StageFinalize  Stage = "finalize"
	StageBroadcast Stage = "broadcast"
)

// StageError wraps a failure of one pipeline stage before broadcast.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s transaction: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// BroadcastError is returned when a finalized transaction was not accepted,
// including cancellation between finalize and broadcast. Signed holds the
// envelope so the caller can rebroadcast it instead of building a new one.
type BroadcastError struct {
	Signed *SignedTransaction
	Err    error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast transaction: signed but not broadcast: %v", e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

// FailedStage reports the pipeline stage an error came from.
func FailedStage(err error) (Stage, bool) {
	var be *BroadcastError
	if errors.As(err, &be) {
		return StageBroadcast, true
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// Class is the user-facing category of an error.
type Class int

const (
	ClassUnknown Class = iota
	// ClassInput: the caller must fix an address, path, mnemonic or amount.
	ClassInput
	// ClassTransient: the operation may succeed if retried.
	ClassTransient
	// ClassFatal: retrying cannot help (capability absent, corrupt envelope).
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps any error returned by this package, a Chain, a KeySource or a
// node.Provider to a Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrSigningUnavailable):
		return ClassFatal
	case errors.Is(err, ErrInvalidPublicKey),
		errors.Is(err, ErrDerivation),
		errors.Is(err, ErrInvalidMnemonic),
		errors.Is(err, node.ErrAPI):
		return ClassInput
	case errors.Is(err, node.ErrNetwork),
		errors.Is(err, mpc.ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ClassTransient
	case errors.Is(err, ErrEnvelope),
		errors.Is(err, node.ErrParse),
		errors.Is(err, ErrSigningFailed),
		errors.Is(err, ErrInvalidPrivateKey):
		return ClassFatal
	}
	return ClassUnknown
}
