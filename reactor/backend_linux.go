//go:build linux

package reactor

func newPoller(b Backend) (poller, error) {
	switch b {
	case BackendDefault, BackendEpoll:
		return newEpollPoller()
	case BackendSelect:
		return newSelectPoller()
	default:
		return nil, ErrBackendUnavailable
	}
}
