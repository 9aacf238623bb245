package api

import (
	"encoding/json"
	"net/http"
)

// Response messages.
const (
	MsgListFailed       = "Unable to retrieve all transactions"
	MsgCreated          = "Transaction created successfully"
	MsgCreateFailed     = "Something went wrong. Unable to create transaction"
	MsgNotFound         = "This transaction does not exist"
	MsgGetFailed        = "Unable to retrieve transaction"
	MsgUpdated          = "Transaction updated successfully"
	MsgDeleted          = "Transaction deleted successfully"
	MsgDeleteFailed     = "Unable to delete transaction"
	MsgAccountFailed    = "Unable to retrieve account"
	MsgInvalidBody      = "Invalid request body"
	MsgRouteNotFound    = "Resource not found"
	MsgMethodNotAllowed = "Method not allowed"
	MsgInternal         = "Internal server error"
	MsgUnavailable      = "Service unavailable"
)

// Envelope wraps every response body. Message is a string, a list of
// field errors or null.
type Envelope struct {
	Success bool `json:"success"`
	Message any  `json:"message"`
	Data    any  `json:"data"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func ok(w http.ResponseWriter, status int, message any, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, status int, message any) {
	writeJSON(w, status, Envelope{Success: false, Message: message})
}
