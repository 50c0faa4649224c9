package executor

import (
	"fmt"
	"strings"
	"time"
)

var weekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

var months = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
	"agosto", "septiembre", "octubre", "noviembre", "diciembre"}

// FormatDate renders t in loc as "sábado 25 de enero de 2026".
func FormatDate(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return fmt.Sprintf("%s %d de %s de %d", weekdays[t.Weekday()], t.Day(), months[t.Month()-1], t.Year())
}

// FormatDateTime renders t in loc as "sábado 25 de enero de 2026 a las 18:00".
func FormatDateTime(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return FormatDate(t, loc) + " a las " + t.Format("15:04")
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	switch {
	case mins%60 == 0 && mins >= 60:
		h := mins / 60
		if h == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", h)
	case mins > 60:
		return fmt.Sprintf("%d h %d min", mins/60, mins%60)
	}
	return fmt.Sprintf("%d minutos", mins)
}

var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseLocalTime parses a model-supplied wall-clock time in loc. Values that
// carry their own offset are accepted and converted to loc.
func ParseLocalTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("fecha y hora inválida %q, usa el formato AAAA-MM-DDTHH:MM", s)
}

// ParseLocalDate parses a YYYY-MM-DD date as midnight in loc.
func ParseLocalDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("fecha inválida %q, usa el formato AAAA-MM-DD", s)
	}
	return t, nil
}

// StartOfDay returns midnight of t's date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
