package azure

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/vmforge/vmforge/internal/provider"
)

func toValue[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// notFound reports whether the error is an ARM 404.
func notFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}

// wrapError classifies an ARM error. Throttling, timeouts and server
// faults are worth retrying; everything else in the 4xx range is a
// request the service will keep rejecting.
func wrapError(operation, kind string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusTooManyRequests,
			respErr.StatusCode == http.StatusRequestTimeout,
			respErr.StatusCode >= http.StatusInternalServerError:
			return provider.NewTransient(operation, kind, err)
		default:
			return provider.NewPermanent(operation, kind, err)
		}
	}
	// Network level failures without a response are treated as transient.
	return provider.NewTransient(operation, kind, err)
}
