package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrUnknownTool is returned for names outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArgs is returned when arguments do not satisfy the tool schema.
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

// Args is the parsed, typed argument set of one tool call.
type Args interface {
	ToolName() string
}

type SearchCasesArgs struct {
	ClientName string `json:"client_name"`
}

type GetCaseBalanceArgs struct {
	CaseID string `json:"case_id"`
}

type AddPaymentArgs struct {
	CaseID   string  `json:"case_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

type CreateMeetingArgs struct {
	Title           string `json:"title"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	CaseID          string `json:"case_id,omitempty"`
	SendReminder    bool   `json:"send_reminder"`
}

type CheckClientPhoneArgs struct {
	CaseID string `json:"case_id"`
}

type GetCalendarEventsArgs struct {
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	ClientName string `json:"client_name,omitempty"`
}

type GetUpcomingRemindersArgs struct {
	DaysAhead int `json:"days_ahead,omitempty"`
}

type DeleteMeetingArgs struct {
	EventID string `json:"event_id"`
}

type RescheduleMeetingArgs struct {
	EventID            string `json:"event_id"`
	NewStartTime       string `json:"new_start_time"`
	NewDurationMinutes int    `json:"new_duration_minutes,omitempty"`
}

func (SearchCasesArgs) ToolName() string          { return SearchCasesByClientName }
func (GetCaseBalanceArgs) ToolName() string       { return GetCaseBalance }
func (AddPaymentArgs) ToolName() string           { return AddPayment }
func (CreateMeetingArgs) ToolName() string        { return CreateMeeting }
func (CheckClientPhoneArgs) ToolName() string     { return CheckClientPhone }
func (GetCalendarEventsArgs) ToolName() string    { return GetCalendarEvents }
func (GetUpcomingRemindersArgs) ToolName() string { return GetUpcomingReminders }
func (DeleteMeetingArgs) ToolName() string        { return DeleteMeeting }
func (RescheduleMeetingArgs) ToolName() string    { return RescheduleMeeting }

// Parse validates raw against the tool's schema and decodes it into the
// tool's argument struct.
func Parse(name string, raw map[string]any) (Args, error) {
	def, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if err := Validate(def.Parameters, raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var args Args
	switch name {
	case SearchCasesByClientName:
		args = &SearchCasesArgs{}
	case GetCaseBalance:
		args = &GetCaseBalanceArgs{}
	case AddPayment:
		args = &AddPaymentArgs{}
	case CreateMeeting:
		args = &CreateMeetingArgs{}
	case CheckClientPhone:
		args = &CheckClientPhoneArgs{}
	case GetCalendarEvents:
		args = &GetCalendarEventsArgs{}
	case GetUpcomingReminders:
		args = &GetUpcomingRemindersArgs{}
	case DeleteMeeting:
		args = &DeleteMeetingArgs{}
	case RescheduleMeeting:
		args = &RescheduleMeetingArgs{}
	default:
		return nil, fmt.Errorf("%w: %q has no argument type", ErrUnknownTool, name)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, name, err)
	}
	if err := json.Unmarshal(data, args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, name, err)
	}
	return args, nil
}

// Validate checks raw against an object schema: required keys present,
// no unknown keys, and every value of the declared type.
func Validate(s *Schema, raw map[string]any) error {
	for _, req := range s.Required {
		if v, ok := raw[req]; !ok || v == nil {
			return fmt.Errorf("%w: missing required field %q", ErrInvalidArgs, req)
		}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		prop, ok := s.Properties[k]
		if !ok {
			return fmt.Errorf("%w: unexpected field %q", ErrInvalidArgs, k)
		}
		v := raw[k]
		if v == nil && !s.IsRequired(k) {
			continue
		}
		if err := checkValue(prop, v); err != nil {
			return fmt.Errorf("%w: field %q %v", ErrInvalidArgs, k, err)
		}
	}
	return nil
}

func checkValue(s *Schema, v any) error {
	switch s.Type {
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("must be a string, got %T", v)
		}
		if len(s.Enum) > 0 {
			for _, e := range s.Enum {
				if e == str {
					return nil
				}
			}
			return fmt.Errorf("must be one of %v", s.Enum)
		}
	case TypeNumber:
		if _, ok := toFloat(v); !ok {
			return fmt.Errorf("must be a number, got %T", v)
		}
	case TypeInteger:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("must be an integer, got %v", v)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("must be a boolean, got %T", v)
		}
	case TypeArray:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("must be an array, got %T", v)
		}
		if s.Items != nil {
			for i, item := range items {
				if err := checkValue(s.Items, item); err != nil {
					return fmt.Errorf("item %d %v", i, err)
				}
			}
		}
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("must be an object, got %T", v)
		}
		return Validate(s, obj)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// References returns the case and event ids an argument set points at.
func References(a Args) (caseID, eventID string) {
	switch v := a.(type) {
	case *GetCaseBalanceArgs:
		return v.CaseID, ""
	case *AddPaymentArgs:
		return v.CaseID, ""
	case *CreateMeetingArgs:
		return v.CaseID, ""
	case *CheckClientPhoneArgs:
		return v.CaseID, ""
	case *DeleteMeetingArgs:
		return "", v.EventID
	case *RescheduleMeetingArgs:
		return "", v.EventID
	}
	return "", ""
}
