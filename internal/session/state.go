package session

// State is the authentication state of a Store.
type State int

// Session states.
const (
	// Unauthenticated means no token is held.
	Unauthenticated State = iota
	// Checking means a token was loaded from storage but the backend has
	// not confirmed it yet.
	Checking
	// Authenticated means the token was issued by login or confirmed by
	// the backend.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
