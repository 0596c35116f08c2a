package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"invofox/internal/domain"
)

type APIResponse struct {
	ErrorCode string      `json:"error_code"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

// ErrorData carries the documents an error is attributed to.
type ErrorData struct {
	DocumentNumbers []string `json:"document_numbers,omitempty"`
	Field           string   `json:"field,omitempty"`
}

func Response(w http.ResponseWriter, message string, data interface{}, errorCode string, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		ErrorCode: errorCode,
		Status:    status,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("write response error")
	}
}

func Success(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, "", "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, "", "success", http.StatusCreated)
}

func SuccessAccepted(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, "", "success", http.StatusAccepted)
}

func Error(w http.ResponseWriter, message string, errorCode string, httpStatus int) {
	Response(w, message, nil, errorCode, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, "bad_request", http.StatusBadRequest)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, "unauthorized", http.StatusUnauthorized)
}

func ErrorNotFound(w http.ResponseWriter, message string) {
	Error(w, message, "not_found", http.StatusNotFound)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, "internal", http.StatusInternalServerError)
}

// HTTPStatus maps a ledger error to its response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrRaceLost),
		errors.Is(err, domain.ErrStorageConflict),
		errors.Is(err, domain.ErrRequestInProgress),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOwnershipMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrInvariant):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrWrongDocumentType),
		errors.Is(err, domain.ErrAmbiguousDocument),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountExceedsBalance),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrTooFew),
		errors.Is(err, domain.ErrTooMany),
		errors.Is(err, domain.ErrCrossCustomer),
		errors.Is(err, domain.ErrCrossCurrency),
		errors.Is(err, domain.ErrIdempotencyMismatch),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// ErrorFrom writes err in the envelope. Unexpected errors are logged and
// hidden from the caller.
func ErrorFrom(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := HTTPStatus(err)
	code := domain.ErrorCode(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("error_code", code).Msg("request failed")
		Error(w, "internal error", code, status)
		return
	}

	var data *ErrorData
	if numbers := domain.DocumentNumbersOf(err); len(numbers) > 0 {
		data = &ErrorData{DocumentNumbers: numbers}
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		if data == nil {
			data = &ErrorData{}
		}
		data.Field = ve.Field
	}
	if data != nil {
		Response(w, err.Error(), data, code, "error", status)
		return
	}
	Error(w, err.Error(), code, status)
}
