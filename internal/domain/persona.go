// Package domain contains core domain types for the persona prediction service.
package domain

// Persona is the visitor profile that drives a prediction prompt.
// The JSON field name businesProblem is part of the public wire format.
type Persona struct {
	Industry       string `json:"industry"`
	BusinesProblem string `json:"businesProblem"`
}
