package dto

import "github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/validation"

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string                  `json:"message"`
	Details []validation.FieldError `json:"details,omitempty"`
}

func NewError(message string, details ...validation.FieldError) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Message: message, Details: details}}
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Pagination describes one page of a listing. Exactly one of TotalCredits and
// TotalUsers is set, depending on what is listed.
type Pagination struct {
	CurrentPage     int    `json:"currentPage"`
	TotalPages      int    `json:"totalPages"`
	Total           int64  `json:"total"`
	TotalCredits    *int64 `json:"totalCredits,omitempty"`
	TotalUsers      *int64 `json:"totalUsers,omitempty"`
	TotalOperations *int64 `json:"totalOperations,omitempty"`
	HasNext         bool   `json:"hasNext"`
	HasPrev         bool   `json:"hasPrev"`
}

func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		Total:       total,
		HasNext:     int64(page)*int64(limit) < total,
		HasPrev:     page > 1,
	}
}

func (p Pagination) OfCredits() Pagination {
	total := p.Total
	p.TotalCredits = &total
	return p
}

func (p Pagination) OfUsers() Pagination {
	total := p.Total
	p.TotalUsers = &total
	return p
}

func (p Pagination) OfOperations() Pagination {
	total := p.Total
	p.TotalOperations = &total
	return p
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
	Ledger    string `json:"ledger"`
	Version   string `json:"version,omitempty"`
}
