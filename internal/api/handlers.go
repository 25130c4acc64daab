package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hostbook/internal/domain"
	"hostbook/internal/models"
	"hostbook/internal/service"
)

const dateLayout = "2006-01-02"

type slotResponse struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type dayResponse struct {
	Date  string         `json:"date"`
	Slots []slotResponse `json:"slots"`
}

type availabilityResponse struct {
	HostID          string        `json:"host_id"`
	TimeZone        string        `json:"time_zone"`
	DurationMinutes int           `json:"duration_minutes"`
	Days            []dayResponse `json:"days"`
}

type createBookingRequest struct {
	HostID          string    `json:"host_id"`
	ScheduledStart  time.Time `json:"scheduled_start"`
	DurationMinutes int       `json:"duration_minutes"`
	ClientNotes     string    `json:"client_notes"`
}

type transitionRequest struct {
	Reason    string `json:"reason"`
	HostNotes string `json:"host_notes"`
}

type ruleDTO struct {
	ID        string    `json:"id,omitempty"`
	HostID    string    `json:"host_id,omitempty"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type overrideDTO struct {
	ID        string    `json:"id,omitempty"`
	HostID    string    `json:"host_id,omitempty"`
	Date      string    `json:"date"`
	Kind      string    `json:"kind"`
	StartTime string    `json:"start_time,omitempty"`
	EndTime   string    `json:"end_time,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startDate, err := parseDate(q.Get("start_date"), "start_date")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	endDate := startDate
	if raw := strings.TrimSpace(q.Get("end_date")); raw != "" {
		if endDate, err = parseDate(raw, "end_date"); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	duration := 0
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		if duration, err = strconv.Atoi(raw); err != nil {
			s.writeServiceError(w, r, domain.Validation("duration_minutes must be an integer"))
			return
		}
	}

	view, err := s.availability.GetAvailability(r.Context(), r.PathValue("hostID"), startDate, endDate, duration)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := availabilityResponse{
		HostID:          view.HostID,
		TimeZone:        view.TimeZone,
		DurationMinutes: view.DurationMinutes,
		Days:            make([]dayResponse, 0, len(view.Days)),
	}
	for _, day := range view.Days {
		slots := make([]slotResponse, 0, len(day.Slots))
		for _, slot := range day.Slots {
			slots = append(slots, slotResponse{StartTime: slot.Start.UTC(), EndTime: slot.End.UTC()})
		}
		resp.Days = append(resp.Days, dayResponse{Date: day.Date, Slots: slots})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if err := decodeBody(r, &body, true); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.bookings.CreateBooking(r.Context(), service.CreateBookingRequest{
		ClientID:        s.auth.Actor(r),
		HostID:          strings.TrimSpace(body.HostID),
		ScheduledStart:  body.ScheduledStart,
		DurationMinutes: body.DurationMinutes,
		ClientNotes:     body.ClientNotes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			s.writeServiceError(w, r, domain.Validation("limit must be a non-negative integer"))
			return
		}
	}

	bookings, err := s.bookings.ListBookings(r.Context(), s.auth.Actor(r), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.bookings.GetBooking(r.Context(), s.auth.Actor(r), r.PathValue("bookingID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	action := models.Transition(r.PathValue("action"))
	if _, ok := models.RuleFor(action); !ok {
		writeError(w, http.StatusNotFound, domain.CodeNotFound, "unknown action")
		return
	}

	var body transitionRequest
	if err := decodeBody(r, &body, false); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.bookings.Transition(r.Context(), service.TransitionRequest{
		BookingID:  r.PathValue("bookingID"),
		ActorID:    s.auth.Actor(r),
		Transition: action,
		Reason:     body.Reason,
		HostNotes:  body.HostNotes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleStaleAuthorizations(w http.ResponseWriter, r *http.Request) {
	stale, err := s.bookings.StaleAuthorizations(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": stale})
}

func (s *HTTPServer) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.availability.ListRules(r.Context(), s.auth.Actor(r), r.PathValue("hostID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]ruleDTO, 0, len(rules))
	for i := range rules {
		out = append(out, toRuleDTO(&rules[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (s *HTTPServer) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var body ruleDTO
	if err := decodeBody(r, &body, true); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	start, err := models.ParseClockTime(body.StartTime)
	if err != nil {
		s.writeServiceError(w, r, domain.Validation("start_time: %v", err))
		return
	}
	end, err := models.ParseClockTime(body.EndTime)
	if err != nil {
		s.writeServiceError(w, r, domain.Validation("end_time: %v", err))
		return
	}

	rule := &models.RecurringRule{
		HostID:    r.PathValue("hostID"),
		DayOfWeek: body.DayOfWeek,
		StartTime: start,
		EndTime:   end,
	}
	if err := s.availability.CreateRule(r.Context(), s.auth.Actor(r), rule); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(rule))
}

func (s *HTTPServer) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	err := s.availability.DeleteRule(r.Context(), s.auth.Actor(r), r.PathValue("hostID"), r.PathValue("ruleID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"), "from")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	to := from
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		if to, err = parseDate(raw, "to"); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	overrides, err := s.availability.ListOverrides(r.Context(), s.auth.Actor(r), r.PathValue("hostID"), from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]overrideDTO, 0, len(overrides))
	for i := range overrides {
		out = append(out, toOverrideDTO(&overrides[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"overrides": out})
}

func (s *HTTPServer) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	var body overrideDTO
	if err := decodeBody(r, &body, true); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	date, err := parseDate(body.Date, "date")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	override := &models.Override{
		HostID: r.PathValue("hostID"),
		Date:   date,
		Kind:   models.OverrideKind(body.Kind),
		Reason: body.Reason,
	}
	if body.StartTime != "" {
		start, err := models.ParseClockTime(body.StartTime)
		if err != nil {
			s.writeServiceError(w, r, domain.Validation("start_time: %v", err))
			return
		}
		override.StartTime = &start
	}
	if body.EndTime != "" {
		end, err := models.ParseClockTime(body.EndTime)
		if err != nil {
			s.writeServiceError(w, r, domain.Validation("end_time: %v", err))
			return
		}
		override.EndTime = &end
	}

	if err := s.availability.CreateOverride(r.Context(), s.auth.Actor(r), override); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOverrideDTO(override))
}

func (s *HTTPServer) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	err := s.availability.DeleteOverride(r.Context(), s.auth.Actor(r), r.PathValue("hostID"), r.PathValue("overrideID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toRuleDTO(rule *models.RecurringRule) ruleDTO {
	return ruleDTO{
		ID:        rule.ID,
		HostID:    rule.HostID,
		DayOfWeek: rule.DayOfWeek,
		StartTime: rule.StartTime.String(),
		EndTime:   rule.EndTime.String(),
		CreatedAt: rule.CreatedAt,
	}
}

func toOverrideDTO(o *models.Override) overrideDTO {
	dto := overrideDTO{
		ID:        o.ID,
		HostID:    o.HostID,
		Date:      models.DateKey(o.Date),
		Kind:      string(o.Kind),
		Reason:    o.Reason,
		CreatedAt: o.CreatedAt,
	}
	if !o.AllDay() {
		start, end := o.Window()
		dto.StartTime, dto.EndTime = start.String(), end.String()
	}
	return dto
}

func parseDate(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.Validation("%s is required", field)
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, domain.Validation("invalid %s format; expected YYYY-MM-DD", field)
	}
	return date, nil
}

// decodeBody reads a JSON body; an empty body is accepted when required is false.
func decodeBody(r *http.Request, dst any, required bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && !required {
			return nil
		}
		return domain.Validation("invalid JSON body")
	}
	return nil
}
