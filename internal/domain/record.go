package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordField names one customer card field.
type RecordField string

const (
	FieldName    RecordField = "name"
	FieldPhone   RecordField = "phone"
	FieldEmail   RecordField = "email"
	FieldArea    RecordField = "area"
	FieldService RecordField = "service"
)

// RecordFields is the fixed field order used for change detection.
var RecordFields = []RecordField{FieldName, FieldPhone, FieldEmail, FieldArea, FieldService}

// CustomerRecord is the card shared by the voice and text channels.
type CustomerRecord struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Area    string `json:"area"`
	Service string `json:"service"`
}

func (r CustomerRecord) Get(field RecordField) string {
	switch field {
	case FieldName:
		return r.Name
	case FieldPhone:
		return r.Phone
	case FieldEmail:
		return r.Email
	case FieldArea:
		return r.Area
	case FieldService:
		return r.Service
	default:
		return ""
	}
}

func (r *CustomerRecord) set(field RecordField, value string) {
	switch field {
	case FieldName:
		r.Name = value
	case FieldPhone:
		r.Phone = value
	case FieldEmail:
		r.Email = value
	case FieldArea:
		r.Area = value
	case FieldService:
		r.Service = value
	}
}

// RecordUpdate carries only the fields being set.
type RecordUpdate map[RecordField]string

// Merge applies the fields present in u and leaves every other field as is.
func (r CustomerRecord) Merge(u RecordUpdate) CustomerRecord {
	next := r
	for _, field := range RecordFields {
		if value, ok := u[field]; ok {
			next.set(field, value)
		}
	}
	return next
}

// FirstFilledField returns the first field, in RecordFields order, that
// changed between prev and curr to a non-empty value.
func FirstFilledField(prev, curr CustomerRecord) (RecordField, bool) {
	for _, field := range RecordFields {
		value := curr.Get(field)
		if value != prev.Get(field) && strings.TrimSpace(value) != "" {
			return field, true
		}
	}
	return "", false
}

// RecordUpdateFromArgs extracts known card fields from tool arguments.
// Unknown keys are dropped; scalar non-string values are formatted.
func RecordUpdateFromArgs(args map[string]any) RecordUpdate {
	update := RecordUpdate{}
	for _, field := range RecordFields {
		raw, ok := args[string(field)]
		if !ok || raw == nil {
			continue
		}
		update[field] = strings.TrimSpace(stringify(raw))
	}
	return update
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprint(value)
	}
}

// RecordOrigin identifies which actor mutated the card.
type RecordOrigin string

const (
	OriginVoice   RecordOrigin = "voice"
	OriginText    RecordOrigin = "text"
	OriginRestore RecordOrigin = "restore"
)
