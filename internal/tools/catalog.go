// Package tools defines the fixed catalog of operations the model may call,
// their argument schemas and the typed arguments they parse into.
package tools

import "slices"

// CatalogVersion changes whenever a tool, description or schema changes.
const CatalogVersion = "2026-10.1"

// Tool names.
const (
	SearchCasesByClientName = "search_cases_by_client_name"
	GetCaseBalance          = "get_case_balance"
	AddPayment              = "add_payment"
	CreateMeeting           = "create_meeting"
	CheckClientPhone        = "check_client_phone"
	GetCalendarEvents       = "get_calendar_events"
	GetUpcomingReminders    = "get_upcoming_reminders"
	DeleteMeeting           = "delete_meeting"
	RescheduleMeeting       = "reschedule_meeting"
)

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	Mutating    bool
	Parameters  *Schema
}

var catalog = []Definition{
	{
		Name: SearchCasesByClientName,
		Description: "Busca los casos del abogado por nombre del cliente. Tolera acentos y errores de escritura. " +
			"Devuelve el caso con su saldo pendiente, o una lista numerada si hay varios; en ese caso pregunta al usuario cuál es.",
		Parameters: object([]string{"client_name"}, map[string]*Schema{
			"client_name": str("Nombre o parte del nombre del cliente, tal como lo escribió el usuario."),
		}),
	},
	{
		Name:        GetCaseBalance,
		Description: "Consulta el total cobrado, lo pagado y el saldo pendiente de un caso.",
		Parameters: object([]string{"case_id"}, map[string]*Schema{
			"case_id": str("ID del caso devuelto por search_cases_by_client_name."),
		}),
	},
	{
		Name: AddPayment,
		Description: "Registra un pago en el caso. Requiere confirmación explícita del usuario. " +
			"La fecha del pago siempre es hoy. Nunca registres un pago en una moneda distinta a la del caso.",
		Mutating: true,
		Parameters: object([]string{"case_id", "amount"}, map[string]*Schema{
			"case_id":  str("ID del caso."),
			"amount":   num("Monto del pago, mayor a cero."),
			"currency": {Type: TypeString, Description: "Moneda mencionada por el usuario, si la mencionó.", Enum: []string{"USD", "MXN"}},
			"notes":    str("Notas opcionales del pago."),
		}),
	},
	{
		Name: CreateMeeting,
		Description: "Agenda una reunión en el calendario del abogado. Antes de confirmar, pregunta si desea recordatorio " +
			"por WhatsApp 24 horas antes. Requiere confirmación explícita del usuario.",
		Mutating: true,
		Parameters: object([]string{"title", "start_time", "send_reminder"}, map[string]*Schema{
			"title":            str("Título de la reunión."),
			"start_time":       str("Fecha y hora local de inicio en formato YYYY-MM-DDTHH:MM, sin zona horaria."),
			"duration_minutes": integer("Duración en minutos. Por defecto 60."),
			"case_id":          str("ID del caso vinculado, si la reunión es con un cliente."),
			"send_reminder":    boolean("Respuesta del usuario a si quiere recordatorio por WhatsApp."),
		}),
	},
	{
		Name:        CheckClientPhone,
		Description: "Verifica si el cliente de un caso tiene teléfono registrado para recibir recordatorios.",
		Parameters: object([]string{"case_id"}, map[string]*Schema{
			"case_id": str("ID del caso."),
		}),
	},
	{
		Name:        GetCalendarEvents,
		Description: "Lista las reuniones del calendario en un rango de fechas, opcionalmente filtradas por cliente.",
		Parameters: object(nil, map[string]*Schema{
			"start_date":  str("Fecha inicial YYYY-MM-DD. Por defecto hoy."),
			"end_date":    str("Fecha final YYYY-MM-DD, inclusiva. Por defecto 30 días después."),
			"client_name": str("Nombre del cliente para filtrar."),
		}),
	},
	{
		Name:        GetUpcomingReminders,
		Description: "Lista los recordatorios pendientes de los próximos días.",
		Parameters: object(nil, map[string]*Schema{
			"days_ahead": integer("Número de días a revisar. Por defecto 7."),
		}),
	},
	{
		Name:        DeleteMeeting,
		Description: "Cancela una reunión y sus recordatorios. Usa solo IDs devueltos por get_calendar_events. Requiere confirmación explícita.",
		Mutating:    true,
		Parameters: object([]string{"event_id"}, map[string]*Schema{
			"event_id": str("ID de la reunión."),
		}),
	},
	{
		Name: RescheduleMeeting,
		Description: "Cambia la fecha u hora de una reunión. Conserva la duración original salvo que se indique otra. " +
			"Usa solo IDs devueltos por get_calendar_events. Requiere confirmación explícita.",
		Mutating: true,
		Parameters: object([]string{"event_id", "new_start_time"}, map[string]*Schema{
			"event_id":             str("ID de la reunión."),
			"new_start_time":       str("Nueva fecha y hora local en formato YYYY-MM-DDTHH:MM, sin zona horaria."),
			"new_duration_minutes": integer("Nueva duración en minutos, solo si el usuario la pidió."),
		}),
	},
}

// Catalog returns a copy of every tool definition in declaration order.
func Catalog() []Definition {
	return slices.Clone(catalog)
}

// Lookup returns the definition for name.
func Lookup(name string) (Definition, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// IsMutating reports whether name is a known tool that writes state.
func IsMutating(name string) bool {
	d, ok := Lookup(name)
	return ok && d.Mutating
}
