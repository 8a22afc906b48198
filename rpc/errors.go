package rpc

import (
	"errors"
	"log/slog"
	"net/http"

	coreerrors "energymarket/core/errors"
)

// ModuleErrorData is attached to module failures so clients can branch on
// the stable numeric code.
type ModuleErrorData struct {
	Module   string `json:"module"`
	Code     uint32 `json:"code"`
	Category string `json:"category"`
}

func invalidParams(detail string) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: detail}
}

func (s *Server) toRPCError(requestID, method string, err error) (int, *RPCError) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		status := http.StatusBadRequest
		if rpcErr.Code == codeUnauthorized {
			status = http.StatusUnauthorized
		}
		return status, rpcErr
	}
	if code, ok := coreerrors.CodeOf(err); ok {
		category := coreerrors.CategoryOf(err)
		// Module failures are well-formed JSON-RPC responses.
		return http.StatusOK, &RPCError{
			Code:    codeModuleError,
			Message: err.Error(),
			Data: ModuleErrorData{
				Module:   coreerrors.ModuleOf(err),
				Code:     code,
				Category: category.String(),
			},
		}
	}
	s.logger.Error("rpc call failed",
		slog.String("request", requestID),
		slog.String("operation", method),
		slog.String("error", err.Error()))
	return http.StatusInternalServerError, &RPCError{Code: codeServerError, Message: "internal error"}
}
