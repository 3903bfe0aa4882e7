// Package mcp implements the Model Context Protocol (MCP) server for weft.
package mcp

import (
	"context"
	"errors"
	"fmt"

	wferrors "github.com/weftlabs/weft/internal/errors"
)

// Custom MCP error codes for weft.
const (
	// ErrCodeIndexNotFound indicates no index exists for the project.
	ErrCodeIndexNotFound = -32001

	// ErrCodeBackendFailure indicates the vector backends rejected the request.
	ErrCodeBackendFailure = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// Sentinel errors for internal use.
var (
	// ErrIndexNotFound indicates no index exists for the project.
	ErrIndexNotFound = errors.New("index not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Raw error text never
// crosses the protocol boundary: anything unrecognized collapses into a
// generic internal error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	// Already mapped errors pass through unchanged.
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var wfErr *wferrors.WeftError
	if errors.As(err, &wfErr) {
		return mapWeftError(wfErr)
	}

	switch {
	case errors.Is(err, ErrIndexNotFound):
		return &MCPError{
			Code:    ErrCodeIndexNotFound,
			Message: "No index exists for this project. Run 'weft index' first.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: "Invalid parameters.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// mapWeftError converts a WeftError to an MCPError.
func mapWeftError(we *wferrors.WeftError) *MCPError {
	// Build message with suggestion if available
	message := we.Message
	if we.Suggestion != "" {
		message = fmt.Sprintf("%s %s", we.Message, we.Suggestion)
	}

	switch we.Category {
	case wferrors.CategoryValidation:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	case wferrors.CategoryBackend:
		if we.Code == wferrors.ErrCodeBackendTimeout {
			return &MCPError{
				Code:    ErrCodeTimeout,
				Message: message,
			}
		}
		return &MCPError{
			Code:    ErrCodeBackendFailure,
			Message: message,
		}
	case wferrors.CategoryStorage:
		// A corrupt manifest or index reads as "no usable index" to a
		// client, which can only fix it by reindexing.
		switch we.Code {
		case wferrors.ErrCodeManifestCorrupt, wferrors.ErrCodeIndexCorrupt:
			return &MCPError{
				Code:    ErrCodeIndexNotFound,
				Message: message,
			}
		default:
			return &MCPError{
				Code:    ErrCodeInternalError,
				Message: message,
			}
		}
	default: // CategoryConfig, CategoryInternal and unknown
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	}
}
