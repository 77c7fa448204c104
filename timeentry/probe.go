package timeentry

import (
	"context"
	"fmt"
	"net/http"
)

// ConnectionErrorKind classifies a failed connectivity probe.
type ConnectionErrorKind int

const (
	KindInvalidToken ConnectionErrorKind = iota + 1
	KindNotFound
	KindClientError
	KindNetwork
)

// ConnectionError is the user-facing result of a failed probe.
type ConnectionError struct {
	Kind       ConnectionErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ConnectionError) Error() string { return e.Message }

func (e *ConnectionError) Unwrap() error { return e.Err }

// TestConnection performs one fetch and turns the outcome into a message.
// 2xx and 5xx both count as reachable and authenticated: a 5xx proves the
// credential was accepted and the request was routed.
func TestConnection(ctx context.Context, config Config) error {
	client, err := New(config)
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = client.FetchCurrent(ctx)
	return describe(err, config.AccountID)
}

func describe(err error, accountID string) error {
	if err == nil {
		return nil
	}

	fe, ok := err.(*FetchError)
	if !ok {
		return &ConnectionError{Kind: KindNetwork, Message: fmt.Sprintf("Error: %v", err), Err: err}
	}

	switch fe.Class {
	case ClassAuthFailure:
		return &ConnectionError{
			Kind:       KindInvalidToken,
			StatusCode: fe.StatusCode,
			Message:    "Invalid API token. Please check that your token is correct and not expired.",
			Err:        fe,
		}
	case ClassClientError:
		if fe.StatusCode == http.StatusNotFound {
			return &ConnectionError{
				Kind:       KindNotFound,
				StatusCode: fe.StatusCode,
				Message:    fmt.Sprintf("Team ID '%s' not found. Please verify your Team ID is correct.", accountID),
				Err:        fe,
			}
		}
		return &ConnectionError{
			Kind:       KindClientError,
			StatusCode: fe.StatusCode,
			Message:    fmt.Sprintf("API returned error: %d %s. Please check your Team ID.", fe.StatusCode, http.StatusText(fe.StatusCode)),
			Err:        fe,
		}
	case ClassTransport:
		// A non-JSON 2xx/5xx body still proves the endpoint answered
		if fe.StatusCode != 0 {
			return nil
		}
		return &ConnectionError{
			Kind:    KindNetwork,
			Message: fmt.Sprintf("Network error: %v. Please check your internet connection.", fe.Err),
			Err:     fe,
		}
	default:
		return nil
	}
}
