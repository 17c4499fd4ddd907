// Package rpc implements the transport, framing, dispatch, and health
// surface of helperd's request daemon, generalized from a fixed verb set to
// helperd's (module, function) pairs.
package rpc

import "encoding/json"

// Request is the wire-level envelope a client sends. Unknown top-level
// fields are ignored by json.Unmarshal's default behavior.
type Request struct {
	Module        string          `json:"module"`
	Function      string          `json:"function"`
	Params        json.RawMessage `json:"params,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	ClientVersion string          `json:"client_version,omitempty"`
}

// Response is the wire-level envelope helperd sends back. Module/Function
// are echoed on success only.
type Response struct {
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Module    string          `json:"module,omitempty"`
	Function  string          `json:"function,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

func successResponse(req Request, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{
		Success:   true,
		Result:    raw,
		Module:    req.Module,
		Function:  req.Function,
		RequestID: req.RequestID,
	}, nil
}

func errorResponse(req Request, kind string, msg string) *Response {
	return &Response{
		Success:   false,
		Error:     msg,
		ErrorKind: kind,
		RequestID: req.RequestID,
	}
}
