package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// PageMeta describes offset pagination for list responses.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPageMeta derives total pages from a total row count.
func NewPageMeta(page, limit int, total int64) PageMeta {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PageMeta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
