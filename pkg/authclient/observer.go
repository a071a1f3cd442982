package authclient

import "time"

// Observer receives client events for metrics. Methods are called
// synchronously on the request path and must not block.
type Observer interface {
	// RequestCompleted is called once per logical request.
	RequestCompleted(method string, resp *NormalizedResponse, duration time.Duration)

	// RefreshCompleted is called once per refresh network round trip. err is
	// nil on success.
	RefreshCompleted(err error, duration time.Duration)

	// RetriedAfterUnauthorized is called when a 401 triggers a refresh and retry.
	RetriedAfterUnauthorized()
}

type nopObserver struct{}

func (nopObserver) RequestCompleted(string, *NormalizedResponse, time.Duration) {}
func (nopObserver) RefreshCompleted(error, time.Duration)                       {}
func (nopObserver) RetriedAfterUnauthorized()                                   {}
