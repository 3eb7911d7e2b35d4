package txstate

// Status is the lifecycle status of a transaction.
type Status int

const (
	// StatusNone indicates no transaction is in flight.
	StatusNone Status = iota
	// StatusMining indicates the transaction was broadcast and awaits confirmation.
	StatusMining
	// StatusSuccess indicates the transaction landed.
	StatusSuccess
	// StatusFail indicates the ledger reverted the transaction.
	StatusFail
	// StatusException indicates a transport or provider error.
	StatusException
)

// String returns a string-encoded status.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusMining:
		return "mining"
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	case StatusException:
		return "exception"
	default:
		return "invalid"
	}
}

// IsTerminal returns whether no further transition can happen for the same attempt.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFail || s == StatusException
}

// State is a transaction state. The set of implementations is closed:
// None, Mining, Success, Fail and Exception.
type State interface {
	Status() Status
	isState()
}

// None is the initial state.
type None struct{}

// Mining is the state while the transaction awaits confirmation.
type Mining struct{}

// Success is the terminal state of a landed transaction.
type Success struct{}

// Fail is the terminal state of a reverted transaction.
type Fail struct {
	Message string
}

// Exception is the terminal state of a transaction that hit a provider error.
type Exception struct {
	Message string
}

// Status implements State.
func (None) Status() Status { return StatusNone }

// Status implements State.
func (Mining) Status() Status { return StatusMining }

// Status implements State.
func (Success) Status() Status { return StatusSuccess }

// Status implements State.
func (Fail) Status() Status { return StatusFail }

// Status implements State.
func (Exception) Status() Status { return StatusException }

func (None) isState()      {}
func (Mining) isState()    {}
func (Success) isState()   {}
func (Fail) isState()      {}
func (Exception) isState() {}

// ErrorMessage returns the message carried by a failure state, if any.
func ErrorMessage(s State) string {
	switch v := s.(type) {
	case Fail:
		return v.Message
	case Exception:
		return v.Message
	}
	return ""
}
