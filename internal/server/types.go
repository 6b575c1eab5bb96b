package server

// AssistRequest is accepted by POST /assist and POST /chat. /assist clients
// send message; the older /chat clients send prompt.
type AssistRequest struct {
	Message string `json:"message,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// Text returns whichever field the client filled in.
func (r AssistRequest) Text() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Prompt
}

// AssistResponse carries the assistant's reply
type AssistResponse struct {
	Reply string `json:"reply"`
}

// PingResponse is returned by GET /ping
type PingResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
