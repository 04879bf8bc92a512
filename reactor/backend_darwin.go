//go:build darwin

package reactor

func newPoller(b Backend) (poller, error) {
	switch b {
	case BackendDefault, BackendKqueue:
		return newKqueuePoller()
	case BackendSelect:
		return newSelectPoller()
	default:
		return nil, ErrBackendUnavailable
	}
}
