package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
)

// GraphQLRequest is one operation in the GraphQL over HTTP request format.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// requestError rejects a request before any operation runs.
type requestError struct {
	status  int
	message string
}

func badRequest(message string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message}
}

// readRequests decodes a GET query string or a POST JSON body. A POST body
// holding an array is a batch; otherwise exactly one request is returned and
// batch is false.
func readRequests(r *http.Request, maxBody int64) (reqs []GraphQLRequest, batch bool, rerr *requestError) {
	if r.Method == http.MethodGet {
		req, rerr := fromQueryString(r)
		if rerr != nil {
			return nil, false, rerr
		}
		return []GraphQLRequest{req}, false, nil
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			return nil, false, badRequest("unsupported Content-Type")
		}
	}
	body, rerr := readBody(r, maxBody)
	if rerr != nil {
		return nil, false, rerr
	}

	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &reqs); err != nil {
			return nil, false, badRequest("invalid JSON")
		}
		if len(reqs) == 0 {
			return nil, false, badRequest("empty batch")
		}
		return reqs, true, nil
	}

	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false, badRequest("invalid JSON")
	}
	if req.Query == "" {
		return nil, false, badRequest("missing 'query'")
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return []GraphQLRequest{req}, false, nil
}

func fromQueryString(r *http.Request) (GraphQLRequest, *requestError) {
	params := r.URL.Query()
	req := GraphQLRequest{
		Query:         params.Get("query"),
		OperationName: params.Get("operationName"),
		Variables:     map[string]any{},
	}
	if req.Query == "" {
		return req, badRequest("missing 'query'")
	}
	if v := params.Get("variables"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
			return req, badRequest("invalid 'variables' JSON")
		}
	}
	return req, nil
}

func readBody(r *http.Request, maxBody int64) ([]byte, *requestError) {
	defer r.Body.Close()
	var src io.Reader = r.Body
	if maxBody > 0 {
		src = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, badRequest("failed to read body")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, &requestError{status: http.StatusRequestEntityTooLarge, message: "body too large"}
	}
	return body, nil
}
