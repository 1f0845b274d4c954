package api

import (
	"time"

	"github.com/rubiojr/yatra/pkg/core"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BackendSearchResponse mirrors what the http provider consumes, so a yatra
// server can act as another instance's search backend.
type BackendSearchResponse struct {
	Results []core.CandidateItem `json:"results"`
}

type SuggestResponse struct {
	Query   string            `json:"query"`
	Mode    string            `json:"mode"`
	Results []core.RankedItem `json:"results"`
	Recent  []string          `json:"recent,omitempty"`
	Popular []string          `json:"popular,omitempty"`
	Count   int               `json:"count"`
}

type HistoryResponse struct {
	Entries []string `json:"entries"`
	Count   int      `json:"count"`
}

type CommitRequest struct {
	Query string `json:"query"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Listeners int       `json:"listeners"`
}

// InitMessage is the first frame sent on the events socket.
type InitMessage struct {
	Type    string   `json:"type"`
	Version string   `json:"version"`
	History []string `json:"history"`
	Popular []string `json:"popular"`
}
