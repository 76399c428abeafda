// Package cerr defines the core's error taxonomy: eight kinds (install
// and uninstall failures counted as one), each carrying a human-readable
// message and a machine-readable code, errors.Is/As compatible instead
// of being used as control-flow via panics. Not every error the core
// returns is classified: the executor's install and removal failures
// are plain wrapped errors.
package cerr

import "fmt"

// Kind is the machine-readable error code.
type Kind string

const (
	RepoUnreachable   Kind = "RepoUnreachable"
	CatalogParseError Kind = "CatalogParseError"
	ItemNotFound      Kind = "ItemNotFound"
	PreconditionFail  Kind = "PreconditionFailed"
	IntegrityFailure  Kind = "IntegrityFailure"
	InstallFailed     Kind = "InstallFailed"
	UninstallFailed   Kind = "UninstallFailed"
	ScriptFailed      Kind = "ScriptFailed"
	Cancelled         Kind = "Cancelled"
)

// Error is the concrete error type every core component returns for a
// taxonomy-classified failure.
type Error struct {
	Kind    Kind
	Item    string // name of the affected pkginfo item, if any
	Message string
	Err     error // wrapped underlying cause, if any
}

func (e *Error) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Item, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, cerr.New(SomeKind, "", "")) to match on Kind
// alone, so callers can test "is this a RepoUnreachable" without caring
// about the item or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, item, message string) *Error {
	return &Error{Kind: kind, Item: item, Message: message}
}

// Wrap constructs an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, item string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Item: item, Message: err.Error(), Err: err}
}

// Sentinel values for errors.Is comparisons against a bare Kind.
var (
	ErrRepoUnreachable   = &Error{Kind: RepoUnreachable}
	ErrCatalogParseError = &Error{Kind: CatalogParseError}
	ErrItemNotFound      = &Error{Kind: ItemNotFound}
	ErrPreconditionFail  = &Error{Kind: PreconditionFail}
	ErrIntegrityFailure  = &Error{Kind: IntegrityFailure}
	ErrInstallFailed     = &Error{Kind: InstallFailed}
	ErrUninstallFailed   = &Error{Kind: UninstallFailed}
	ErrScriptFailed      = &Error{Kind: ScriptFailed}
	ErrCancelled         = &Error{Kind: Cancelled}
)
