package protocol

// StatusCode is the fixed set of codes carried on response and error
// envelopes. Codes below 1000 mirror their HTTP counterparts; codes
// 1001+ are protocol specific.
type StatusCode int

const (
	StatusOK                 StatusCode = 200
	StatusCreated            StatusCode = 201
	StatusAccepted           StatusCode = 202
	StatusBadRequest         StatusCode = 400
	StatusUnauthorized       StatusCode = 401
	StatusForbidden          StatusCode = 403
	StatusNotFound           StatusCode = 404
	StatusConflict           StatusCode = 409
	StatusInternalError      StatusCode = 500
	StatusNotImplemented     StatusCode = 501
	StatusServiceUnavailable StatusCode = 503

	StatusAgentNotFound      StatusCode = 1001
	StatusMessageFormatError StatusCode = 1002
	StatusRoutingError       StatusCode = 1003
	StatusTaskNotFound       StatusCode = 1004
	StatusArtifactNotFound   StatusCode = 1005
)

var statusDescriptions = map[StatusCode]string{
	StatusOK:                 "OK",
	StatusCreated:            "Created",
	StatusAccepted:           "Accepted",
	StatusBadRequest:         "Bad request",
	StatusUnauthorized:       "Unauthorized",
	StatusForbidden:          "Forbidden",
	StatusNotFound:           "Not found",
	StatusConflict:           "Conflict",
	StatusInternalError:      "Internal error",
	StatusNotImplemented:     "Not implemented",
	StatusServiceUnavailable: "Service unavailable",
	StatusAgentNotFound:      "Agent not found",
	StatusMessageFormatError: "Message format error",
	StatusRoutingError:       "Routing error",
	StatusTaskNotFound:       "Task not found",
	StatusArtifactNotFound:   "Artifact not found",
}

// Description returns the canonical description for the status code, or
// "Unknown status" for codes outside the fixed set.
func (c StatusCode) Description() string {
	if d, ok := statusDescriptions[c]; ok {
		return d
	}
	return "Unknown status"
}

// Valid reports whether c belongs to the fixed status code set.
func (c StatusCode) Valid() bool {
	_, ok := statusDescriptions[c]
	return ok
}
