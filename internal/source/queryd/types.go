package queryd

// QueryResponse is the wire format of the remote query service
type QueryResponse struct {
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
	Data   QueryData `json:"data"`
}

// QueryData carries the result rows
type QueryData struct {
	Rows []map[string]any `json:"rows"`
}
