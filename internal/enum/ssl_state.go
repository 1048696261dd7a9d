package enum

type SSLState string

const (
	SSLStateUnset        SSLState = ""
	SSLStatePending      SSLState = "PENDING"
	SSLStateInitializing SSLState = "INITIALIZING"
	SSLStateReady        SSLState = "READY"
	SSLStateError        SSLState = "ERROR"
)

func (s SSLState) String() string {
	return string(s)
}

func (s SSLState) IsValid() bool {
	switch s {
	case SSLStatePending, SSLStateInitializing, SSLStateReady, SSLStateError:
		return true
	}
	return false
}
