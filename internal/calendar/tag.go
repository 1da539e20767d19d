package calendar

import (
	"strings"
	"time"

	"bioskin/internal/interval"
)

const (
	tagKey          = "#tag"
	legacyBlockMark = "BLOQUEO"
)

// EncodeDescription renders the kind tag and metadata as description lines.
func EncodeDescription(kind Kind, meta Metadata) string {
	var b strings.Builder
	writeLine(&b, tagKey, string(kind))
	writeLine(&b, "reason", meta.Reason)
	if !meta.CreatedAt.IsZero() {
		writeLine(&b, "created_at", meta.CreatedAt.Format(time.RFC3339))
	}
	writeLine(&b, "batch", meta.BatchID)
	writeLine(&b, "patient", meta.Patient)
	writeLine(&b, "phone", meta.Phone)
	writeLine(&b, "email", meta.Email)
	writeLine(&b, "service", meta.Service)
	writeLine(&b, "notes", meta.Notes)
	return strings.TrimSuffix(b.String(), "\n")
}

func writeLine(b *strings.Builder, key, value string) {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if value == "" {
		return
	}
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}

// Decode turns a raw store event into a typed event. Events without a
// recognised tag are appointments: anything on the calendar consumes time.
func Decode(raw RawEvent) Event {
	fields := parseFields(raw.Description)

	kind := KindAppointment
	if k, err := ParseKind(strings.ToLower(fields[tagKey])); err == nil {
		kind = k
	} else if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(raw.Summary)), legacyBlockMark) {
		kind = KindBlock
	}

	meta := Metadata{
		Reason:  fields["reason"],
		BatchID: fields["batch"],
		Patient: fields["patient"],
		Phone:   fields["phone"],
		Email:   fields["email"],
		Service: fields["service"],
		Notes:   fields["notes"],
	}
	if ts := fields["created_at"]; ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			meta.CreatedAt = t
		}
	}
	if kind == KindBlock && meta.Reason == "" {
		meta.Reason = legacyReason(raw.Summary)
	}

	return Event{
		ID:       raw.ID,
		Interval: interval.TimeInterval{Start: raw.Start, End: raw.End},
		Kind:     kind,
		Summary:  raw.Summary,
		Meta:     meta,
	}
}

func parseFields(description string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(description, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

func legacyReason(summary string) string {
	s := strings.TrimSpace(summary)
	if len(s) < len(legacyBlockMark) {
		return ""
	}
	s = strings.TrimSpace(s[len(legacyBlockMark):])
	return strings.TrimSpace(strings.TrimLeft(s, ":-"))
}

// DefaultSummary is the title written for a new event of kind.
func DefaultSummary(kind Kind, meta Metadata) string {
	if kind == KindBlock {
		if meta.Reason == "" {
			return legacyBlockMark
		}
		return legacyBlockMark + ": " + meta.Reason
	}
	switch {
	case meta.Patient != "" && meta.Service != "":
		return "Cita: " + meta.Patient + " - " + meta.Service
	case meta.Patient != "":
		return "Cita: " + meta.Patient
	}
	return "Cita"
}
