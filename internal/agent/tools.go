package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Tool is one named capability the model may invoke during a completion.
// The set of tools is a closed static table; there is no runtime
// registration.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// BuiltinTools returns the full static tool table. Tenants narrow it via
// their enabled_tools list; see FilterTools.
func BuiltinTools() []Tool {
	return []Tool{
		scheduleVisitTool{},
		businessHoursTool{},
		propertyInfoTool{},
		sendEmailTool{},
	}
}

// FilterTools returns the subset of tools whose names appear in enabled.
func FilterTools(tools []Tool, enabled []string) []Tool {
	allowed := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		allowed[name] = struct{}{}
	}
	var out []Tool
	for _, t := range tools {
		if _, ok := allowed[t.Name()]; ok {
			out = append(out, t)
		}
	}
	return out
}

func findTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// scheduleVisitTool books a property visit. The booking itself is
// simulated; a real deployment would hit a scheduling backend here.
type scheduleVisitTool struct{}

func (scheduleVisitTool) Name() string { return "schedule_visit" }

func (scheduleVisitTool) Description() string {
	return "Schedule a property visit for a potential client."
}

func (scheduleVisitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"property_id": {"type": "string", "description": "ID of the property to visit"},
			"datetime_iso": {"type": "string", "description": "Preferred date and time in ISO format"},
			"name": {"type": "string", "description": "Name of the person scheduling the visit"},
			"phone": {"type": "string", "description": "Contact phone number"},
			"email": {"type": "string", "description": "Optional email address"}
		},
		"required": ["property_id", "datetime_iso", "name", "phone"]
	}`)
}

func (scheduleVisitTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	var args struct {
		PropertyID  string `json:"property_id"`
		DatetimeISO string `json:"datetime_iso"`
		Name        string `json:"name"`
		Phone       string `json:"phone"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("schedule_visit: invalid input: %w", err)
	}

	confirmationID := "VISIT-" + strings.ToUpper(uuid.NewString()[:8])
	out := map[string]any{
		"confirmation_id":    confirmationID,
		"status":             "confirmed",
		"message":            fmt.Sprintf("Visit confirmed for %s on %s. You will receive a confirmation call at %s.", args.Name, args.DatetimeISO, args.Phone),
		"scheduled_datetime": args.DatetimeISO,
	}
	raw, err := json.Marshal(out)
	return string(raw), err
}

// businessHoursTool reports opening hours. Static data for now.
type businessHoursTool struct{}

func (businessHoursTool) Name() string { return "get_business_hours" }

func (businessHoursTool) Description() string {
	return "Get current business hours and availability information."
}

func (businessHoursTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (businessHoursTool) Execute(context.Context, json.RawMessage) (string, error) {
	out := map[string]any{
		"hours": map[string]string{
			"Monday":    "9:00 AM - 6:00 PM",
			"Tuesday":   "9:00 AM - 6:00 PM",
			"Wednesday": "9:00 AM - 6:00 PM",
			"Thursday":  "9:00 AM - 6:00 PM",
			"Friday":    "9:00 AM - 5:00 PM",
			"Saturday":  "10:00 AM - 3:00 PM",
			"Sunday":    "Closed",
		},
		"timezone": "UTC-5 (Eastern Time)",
		"special_notes": []string{
			"Appointments available outside business hours by request",
			"Holiday hours may vary",
			"Emergency support available 24/7",
		},
	}
	raw, err := json.Marshal(out)
	return string(raw), err
}

// propertyInfoTool looks up a property listing. Mock data until a listing
// backend exists.
type propertyInfoTool struct{}

func (propertyInfoTool) Name() string { return "get_property_info" }

func (propertyInfoTool) Description() string {
	return "Get information about a specific property."
}

func (propertyInfoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"property_id": {"type": "string", "description": "The ID of the property to look up"}
		},
		"required": ["property_id"]
	}`)
}

func (propertyInfoTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	var args struct {
		PropertyID string `json:"property_id"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("get_property_info: invalid input: %w", err)
	}

	out := map[string]any{
		"property_id": args.PropertyID,
		"address":     "123 Main Street, City, State 12345",
		"type":        "Single Family Home",
		"bedrooms":    3,
		"bathrooms":   2,
		"square_feet": 1850,
		"price":       "$350,000",
		"status":      "Available",
		"description": "Beautiful 3-bedroom home with updated kitchen and spacious backyard.",
		"features":    []string{"Updated Kitchen", "Hardwood Floors", "Fenced Yard", "Garage"},
	}
	raw, err := json.Marshal(out)
	return string(raw), err
}

// sendEmailTool queues an outbound email. Delivery is simulated.
type sendEmailTool struct{}

func (sendEmailTool) Name() string { return "send_email" }

func (sendEmailTool) Description() string {
	return "Send an email to a recipient on the user's behalf."
}

func (sendEmailTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"to": {"type": "string", "description": "Recipient email address"},
			"subject": {"type": "string", "description": "Email subject line"},
			"body": {"type": "string", "description": "Email body text"}
		},
		"required": ["to", "subject", "body"]
	}`)
}

func (sendEmailTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	var args struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("send_email: invalid input: %w", err)
	}

	out := map[string]any{
		"message_id": "EMAIL-" + strings.ToUpper(uuid.NewString()[:8]),
		"status":     "queued",
		"message":    fmt.Sprintf("Email %q queued for delivery to %s.", args.Subject, args.To),
	}
	raw, err := json.Marshal(out)
	return string(raw), err
}
