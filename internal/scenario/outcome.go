package scenario

import (
	"fmt"
	"net/http"
)

// Kind classifies the result of one request.
type Kind int

// Request outcome kinds.
const (
	// Success means the service was reachable and answered acceptably.
	Success Kind = iota
	// ServiceUnavailable means the gateway could not reach the service (502/503/504).
	ServiceUnavailable
	// UnexpectedStatus is any status code the policy does not accept.
	UnexpectedStatus
	// TransportFailure means no HTTP response was received.
	TransportFailure
)

// String returns the kind label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ServiceUnavailable:
		return "service_unavailable"
	case UnexpectedStatus:
		return "unexpected_status"
	case TransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the classification of one request.
type Outcome struct {
	Kind       Kind
	StatusCode int
	// Message labels a failure, empty on success.
	Message string
}

// OK reports whether the outcome counts as a success.
func (o Outcome) OK() bool {
	return o.Kind == Success
}

// Policy decides which status codes count as success.
type Policy string

// Classification policies.
const (
	// PolicyGateway accepts 200, 201, 404 and 500: the service is up and
	// routed even if it answered with an application level error.
	PolicyGateway Policy = "gateway"
	// PolicyStrict accepts only 200 and 201.
	PolicyStrict Policy = "strict"
)

// ParsePolicy converts a configuration value to a Policy. Empty means gateway.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyGateway:
		return PolicyGateway, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("%w: unknown policy %q", ErrInvalidScenario, s)
	}
}

// Classify maps a status code to an outcome.
func (p Policy) Classify(status int) Outcome {
	switch status {
	case http.StatusOK, http.StatusCreated:
		return Outcome{Kind: Success, StatusCode: status}
	case http.StatusNotFound, http.StatusInternalServerError:
		if p != PolicyStrict {
			return Outcome{Kind: Success, StatusCode: status}
		}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Outcome{
			Kind:       ServiceUnavailable,
			StatusCode: status,
			Message:    fmt.Sprintf("Service unavailable: HTTP %d", status),
		}
	}
	return Outcome{
		Kind:       UnexpectedStatus,
		StatusCode: status,
		Message:    fmt.Sprintf("Unexpected status: HTTP %d", status),
	}
}

// transportOutcome describes a request that got no response.
func transportOutcome(err error) Outcome {
	return Outcome{Kind: TransportFailure, Message: fmt.Sprintf("Transport error: %v", err)}
}
