package advisor

// ChatRequest is the body posted to the backend for one turn
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

const (
	// DataPrefix marks a payload line inside an SSE frame
	DataPrefix = "data: "
	// Sentinel is the payload that terminates a response stream
	Sentinel = "[DONE]"
)
