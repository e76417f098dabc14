package llm

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Request struct {
	System string
	Prompt string
	// JSON asks the model for an application/json response body.
	JSON        bool
	Temperature float32
}

type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

var (
	ErrRateLimited = errors.New("llm: rate limited")
	ErrUnavailable = errors.New("llm: unavailable")
	ErrEmpty       = errors.New("llm: empty response")
)

// Classify wraps transport failures in ErrRateLimited or ErrUnavailable so
// callers can pick a retry policy. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrUnavailable, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return errors.Join(ErrRateLimited, err)
		case gerr.Code >= 500:
			return errors.Join(ErrUnavailable, err)
		}
		return err
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return errors.Join(ErrRateLimited, err)
		case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return errors.Join(ErrUnavailable, err)
		}
	}
	return err
}
