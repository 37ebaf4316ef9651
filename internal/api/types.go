package api

type welcomeResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status      string `json:"status"`
	HistoryMode string `json:"history_mode"`
}

// Pointer fields tell a missing key apart from an empty string.
type chatRequest struct {
	UserID   *string `json:"user_id"`
	Question *string `json:"question"`
}

func (r chatRequest) validate() string {
	switch {
	case r.UserID == nil && r.Question == nil:
		return "user_id and question are required"
	case r.UserID == nil:
		return "user_id is required"
	case r.Question == nil:
		return "question is required"
	}
	return ""
}

type chatResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
