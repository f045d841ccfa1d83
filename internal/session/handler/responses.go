package handler

import "attest/internal/session/models"

// The session model carries stable JSON tags, so responses reuse it directly.

func sessionResponse(s *models.Session) *models.Session { return s }

func sessionResponses(sessions []models.Session) []models.Session {
	if sessions == nil {
		return []models.Session{}
	}
	return sessions
}

type listResponse struct {
	Sessions []models.Session `json:"sessions"`
}

// declarationPendingResponse is the 202 body returned while issuance waits on
// the user's declaration.
type declarationPendingResponse struct {
	Message   string `json:"message"`
	Statement string `json:"statement"`
}
