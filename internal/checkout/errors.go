package checkout

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

// Error codes surfaced to API clients.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeCollaboratorFailure = "COLLABORATOR_FAILURE"
)

var (
	// ErrInvalidRequest marks malformed carts and payloads.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidAmount marks a non-positive or unrepresentable total.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrCollaboratorFailure marks price store or payment provider failures.
	ErrCollaboratorFailure = errors.New("collaborator failure")
)

func invalidRequest(message string) *common.AppError {
	return common.NewAppError(CodeInvalidRequest, message, http.StatusBadRequest, ErrInvalidRequest)
}

func invalidAmount(message string, cause error) *common.AppError {
	err := ErrInvalidAmount
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidAmount, cause)
	}
	return common.NewAppError(CodeInvalidAmount, message, http.StatusBadRequest, err)
}

// collaboratorFailure keeps cause for logs; message is what the client sees.
func collaboratorFailure(message string, cause error) *common.AppError {
	return common.NewAppError(CodeCollaboratorFailure, message, http.StatusInternalServerError, fmt.Errorf("%w: %w", ErrCollaboratorFailure, cause))
}
