// Package model holds the HTTP wire shapes that are not campaign state.
package model

type ErrorResp struct {
	Error string `json:"error"`
}

type CampaignList[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// TaskResp answers a pushed stage delivery.
type TaskResp struct {
	CampaignID string `json:"campaign_id"`
	Stage      string `json:"stage"`
	Outcome    string `json:"outcome"`
	Status     string `json:"status,omitempty"`
	Detail     string `json:"detail,omitempty"`
}
