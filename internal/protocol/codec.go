package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrMalformed marks request bodies that cannot be decoded.
var ErrMalformed = errors.New("malformed request")

// DecodeCommandRequest reads at most maxBytes from r and strictly decodes a
// CommandRequest. The command name must be set and params, when present,
// must be a JSON object.
func DecodeCommandRequest(r io.Reader, maxBytes int64) (*CommandRequest, error) {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformed, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformed, maxBytes)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	var req CommandRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON body", ErrMalformed)
	}

	if req.CommandName() == "" {
		return nil, fmt.Errorf("%w: missing command name (\"type\" or \"name\")", ErrMalformed)
	}
	if req.Name != "" && req.Type != "" && req.Name != req.Type {
		return nil, fmt.Errorf("%w: \"type\" and \"name\" disagree", ErrMalformed)
	}

	params := bytes.TrimSpace(req.Params)
	switch {
	case len(params) == 0, bytes.Equal(params, []byte("null")):
		req.Params = json.RawMessage("{}")
	case params[0] != '{':
		return nil, fmt.Errorf("%w: params must be a JSON object", ErrMalformed)
	}
	return &req, nil
}

// EncodeResult builds a successful CommandResponse.
func EncodeResult(commandID string, value any) (*CommandResponse, error) {
	resp := &CommandResponse{Success: true, CommandID: commandID}
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		resp.Result = raw
	}
	return resp, nil
}

// DecodeCommandResponse reads a CommandResponse and checks it is coherent.
func DecodeCommandResponse(r io.Reader) (*CommandResponse, error) {
	var resp CommandResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !resp.Success && resp.Error == "" {
		return nil, fmt.Errorf("response has success=false but no error message")
	}
	return &resp, nil
}

// HTTPStatus maps an error kind to the listener's HTTP status code.
func HTTPStatus(kind string) int {
	switch kind {
	case "":
		return http.StatusOK
	case "malformed_request":
		return http.StatusBadRequest
	case "unknown_command":
		return http.StatusNotFound
	case "timeout":
		return http.StatusGatewayTimeout
	case "shutting_down", "lifecycle":
		return http.StatusServiceUnavailable
	default:
		// Handler failures are ordinary structured results.
		return http.StatusOK
	}
}
