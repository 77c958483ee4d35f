package heartbeat

import (
	"errors"
	"fmt"
)

// Kind classifies why a heartbeat was not delivered.
type Kind int

const (
	KindUnexpected Kind = iota
	// KindConfig means the controller URL or API key is missing or unusable.
	// No network I/O was attempted.
	KindConfig
	// KindTransport covers timeouts, refused connections and DNS failures
	// on either the latency ping or the delivery POST.
	KindTransport
	// KindStatus means the controller answered with something other than 200.
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	default:
		return "unexpected"
	}
}

var ErrMissingConfig = errors.New("MAIN_SERVER_URL or API_KEY not configured")

// Error is returned by Sender.Send for every failed cycle.
type Error struct {
	Kind       Kind
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("heartbeat rejected with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("heartbeat %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of err. Errors that did not come from this package
// are unexpected.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return KindUnexpected
}

func configError(err error) error {
	return &Error{Kind: KindConfig, Err: err}
}

func transportError(op string, err error) error {
	return &Error{Kind: KindTransport, Err: fmt.Errorf("%s: %w", op, err)}
}

func unexpectedError(op string, err error) error {
	return &Error{Kind: KindUnexpected, Err: fmt.Errorf("%s: %w", op, err)}
}
