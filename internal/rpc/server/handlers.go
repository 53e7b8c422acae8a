package server

import (
	"encoding/hex"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	json "github.com/segmentio/encoding/json"

	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/epee"
	"github.com/cuprate/cuprate/internal/rpc/types"
)

// handleJSONRPC implements the /json_rpc endpoint: decode the envelope,
// look up the method, gate on restriction, dispatch, and reply. Every
// request that carries an id gets HTTP 200, since JSON-RPC reports failure
// inside the body per spec (parse/invalid-request/method-not-found/
// invalid-params/internal error are all -32xxx codes in a Response, not
// HTTP statuses); a notification, including one for an unknown or
// restricted method, gets 204 No Content.
func (s *Server) handleJSONRPC(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusOK, types.NewErrorResponse(nil, types.CodeParseError, "read body"))
	}

	var req types.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusOK, types.NewErrorResponse(nil, types.CodeParseError, "invalid json"))
	}
	if req.JSONRPC != "2.0" {
		return c.JSON(http.StatusOK, types.NewErrorResponse(req.ID, types.CodeInvalidRequest, `"jsonrpc" must be "2.0"`))
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		if req.IsNotification() {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, types.NewErrorResponse(req.ID, types.CodeMethodNotFound, "method not found: "+req.Method))
	}

	if handler.Restricted && s.restrictedListener {
		if req.IsNotification() {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, types.NewErrorResponse(req.ID, types.CodeRestricted, "method is restricted"))
	}

	result, err := handler.Handle(c, req.Params)
	if req.IsNotification() {
		// A notification gets no response of any kind, success or error
		// (spec §4.15), but the handler still ran for its side effects.
		return c.NoContent(http.StatusNoContent)
	}
	if err != nil {
		code, msg := types.ErrorFromCuprate(err)
		return c.JSON(http.StatusOK, types.NewErrorResponse(req.ID, code, msg))
	}

	resp, err := types.NewResultResponse(req.ID, result)
	if err != nil {
		code, msg := types.ErrorFromCuprate(err)
		return c.JSON(http.StatusOK, types.NewErrorResponse(req.ID, code, msg))
	}
	return c.JSON(http.StatusOK, resp)
}

// handleFixedJSON serves a fixed JSON endpoint such as /get_height. It
// supports the same restricted gating as /json_rpc, but a fixed endpoint
// reports restriction as an actual HTTP 403 rather than a body-level code,
// since there's no JSON-RPC envelope to carry an error object in.
func (s *Server) handleFixedJSON(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := s.json[name]
		if h.Restricted && s.restrictedListener {
			return echo.NewHTTPError(http.StatusForbidden, "method is restricted")
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "read body")
		}

		result, err := h.Handle(c, body)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, result)
	}
}

// handleFixedBin serves a fixed .bin endpoint such as /get_blocks.bin,
// encoding the handler's result as epee. A client that sets
// Accept: text/plain gets the same bytes hex-encoded instead, mirroring
// the HEX response mode of the teacher's content-negotiated handlers.
func (s *Server) handleFixedBin(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := s.bin[name]
		if h.Restricted && s.restrictedListener {
			return echo.NewHTTPError(http.StatusForbidden, "method is restricted")
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "read body")
		}

		result, err := h.Handle(c, body)
		if err != nil {
			return httpError(err)
		}
		writable, ok := result.(epee.Writable)
		if !ok {
			return echo.NewHTTPError(http.StatusInternalServerError, "handler result has no epee encoding")
		}
		data, err := epee.Marshal(writable)
		if err != nil {
			return httpError(err)
		}

		if c.Request().Header.Get("Accept") == "text/plain" {
			return c.String(http.StatusOK, hex.EncodeToString(data))
		}
		return c.Blob(http.StatusOK, "application/octet-stream", data)
	}
}

// httpError translates a handler's *cuperrors.Error into the HTTP status
// code spec §4.16 calls for ("translation of handler errors into status
// codes"), with its own switch on the cuperrors code; it does not use
// cuperrors.ToGRPCCode.
func httpError(err error) error {
	cerr, ok := err.(*cuperrors.Error)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch cerr.Code {
	case cuperrors.ERR_NOT_FOUND:
		return echo.NewHTTPError(http.StatusNotFound, cerr.Error())
	case cuperrors.ERR_INVALID_ARGUMENT, cuperrors.ERR_FORMAT, cuperrors.ERR_RPC_INVALID_PARAMS:
		return echo.NewHTTPError(http.StatusBadRequest, cerr.Error())
	case cuperrors.ERR_RPC_RESTRICTED:
		return echo.NewHTTPError(http.StatusForbidden, cerr.Error())
	case cuperrors.ERR_TIMEOUT:
		return echo.NewHTTPError(http.StatusGatewayTimeout, cerr.Error())
	case cuperrors.ERR_THRESHOLD_EXCEEDED:
		return echo.NewHTTPError(http.StatusTooManyRequests, cerr.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, cerr.Error())
	}
}
