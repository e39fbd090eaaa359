package api

// Inbound websocket message: {action: "subscribe"|"unsubscribe", symbol}.
type clientMessage struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

type ackMessage struct {
	Action  string `json:"action"`
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

type errorMessage struct {
	Error string `json:"error"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type serviceInfo struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}
