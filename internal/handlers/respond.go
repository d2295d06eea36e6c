package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"ms-reminders/internal/plan"
	"ms-reminders/internal/services"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeRequest decodes the JSON body into dst and runs its validate tags
func decodeRequest(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeServiceError maps service errors to status codes
func writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, services.ErrAppointmentNotFound):
		http.Error(w, "Appointment not found", http.StatusNotFound)
	case errors.Is(err, services.ErrOffsetNotFound):
		http.Error(w, "Reminder offset not found", http.StatusNotFound)
	case errors.Is(err, services.ErrAppointmentClosed):
		http.Error(w, "Appointment is no longer active", http.StatusConflict)
	case errors.Is(err, plan.ErrInvalidAmount), errors.Is(err, plan.ErrDuplicateChannel):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Msgf("Failed to %s", action)
		http.Error(w, "Failed to "+action, http.StatusInternalServerError)
	}
}
