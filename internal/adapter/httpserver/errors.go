package httpserver

import (
	"context"
	"errors"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	apperrors "github.com/Scobiform/fedi-follow-force-graph/internal/platform/errors"
)

// toAppError translates domain failures into client-facing errors. A failed
// graph build is always an error response, never an empty graph.
func toAppError(err error) error {
	var structured *apperrors.Error
	if errors.As(err, &structured) {
		return structured
	}

	var netErr *domain.NetworkError
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return apperrors.NotFound("account not found")
	case errors.Is(err, domain.ErrSettingNotFound):
		return apperrors.NotFound("setting not found")
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return apperrors.Unavailable("remote instance unavailable, retry later", err)
	case errors.As(err, &netErr):
		return apperrors.External("failed to fetch relationships from the remote instance", err).
			With("relationship", string(netErr.Relationship)).
			With("account_id", netErr.AccountID)
	case errors.Is(err, domain.ErrPaginationOverrun):
		return apperrors.External("relationship listing did not terminate", err)
	case errors.Is(err, domain.ErrInvalidAccount):
		return apperrors.Internal("remote instance returned an invalid account", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Unavailable("request timed out", err)
	}
	return apperrors.Internal("internal server error", err)
}
