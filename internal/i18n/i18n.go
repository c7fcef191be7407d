// Package i18n is the fixed message table for recipient-facing text.
//
// Messages are registered with golang.org/x/text/message once per process and
// rendered through a Printer bound to the configured locale. Unknown locales
// fall back to Spanish, the language the recipients were onboarded in.
package i18n

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys.
const (
	KeySessionAlert   = "alert.session"
	KeyMenu           = "command.menu"
	KeyPaused         = "command.paused"
	KeySessionOpened  = "command.session_opened"
	KeyWelcomeCaption = "push.welcome"
)

var fallback = language.Spanish

var tables = map[language.Tag]map[string]string{
	language.Spanish: {
		KeySessionAlert: "🔔 Alerta de movimiento en %[1]s\n" +
			"🗓 Fecha y Hora: %[2]s\n" +
			"🔍 Objetos detectados: %[3]s",
		KeyMenu: "📋 Comandos disponibles:\n" +
			"• ALERTAS: recibir alertas con imagen durante %[1]s\n" +
			"• PARAR: pausar las alertas por %[2]s\n" +
			"• MENU: ver este menú",
		KeyPaused:        "⏸ Alertas pausadas hasta %[1]s. Enviá ALERTAS para reactivarlas antes.",
		KeySessionOpened: "✅ Recibido. Enviaremos alertas por las próximas %[1]s.",
		KeyWelcomeCaption: "📷 Última alerta registrada en %[1]s\n" +
			"🗓 Fecha y Hora: %[2]s\n" +
			"🔍 Objetos detectados: %[3]s",
	},
	language.English: {
		KeySessionAlert: "🔔 Motion alert at %[1]s\n" +
			"🗓 Date and time: %[2]s\n" +
			"🔍 Detected objects: %[3]s",
		KeyMenu: "📋 Available commands:\n" +
			"• ALERTAS: receive image alerts for %[1]s\n" +
			"• PARAR: pause alerts for %[2]s\n" +
			"• MENU: show this menu",
		KeyPaused:        "⏸ Alerts paused until %[1]s. Send ALERTAS to resume earlier.",
		KeySessionOpened: "✅ Received. We will send alerts for the next %[1]s.",
		KeyWelcomeCaption: "📷 Latest alert recorded at %[1]s\n" +
			"🗓 Date and time: %[2]s\n" +
			"🔍 Detected objects: %[3]s",
	},
}

// Detection labels as emitted by the recognizer, keyed by folded label.
var labels = map[language.Tag]map[string]string{
	language.Spanish: {
		"person":              "Persona",
		"vehicle":             "Vehículo",
		"fire":                "Fuego",
		"smoke":               "Humo",
		"unknown":             "Desconocido",
		"nothing found":       "No se detectaron objetos",
		"no objects detected": "No se detectaron objetos",
		"error":               "Error al leer la imagen",
	},
	language.English: {
		"nothing found":       "No objects detected",
		"no objects detected": "No objects detected",
		"error":               "Could not read image",
	},
}

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		for tag, msgs := range tables {
			for key, msg := range msgs {
				// SetString only fails on malformed tags; these are constants.
				_ = message.SetString(tag, key, msg)
			}
		}
	})
}

// Catalog renders messages for one locale. It is safe for concurrent use.
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a Catalog for locale ("es", "es-AR", "en", ...).
func New(locale string) *Catalog {
	register()
	tag := match(locale)
	return &Catalog{
		tag:     tag,
		printer: message.NewPrinter(tag),
	}
}

func match(locale string) language.Tag {
	t, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return fallback
	}
	base, _ := t.Base()
	for tag := range tables {
		if b, _ := tag.Base(); b == base {
			return tag
		}
	}
	return fallback
}

// Tag returns the matched locale.
func (c *Catalog) Tag() language.Tag { return c.tag }

// Sprintf renders the message registered under key.
func (c *Catalog) Sprintf(key string, args ...any) string {
	return c.printer.Sprintf(key, args...)
}

// Label translates a detection label. Labels missing from the table are
// returned unchanged apart from surrounding whitespace.
func (c *Catalog) Label(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return c.Label("nothing found")
	}
	if v, ok := labels[c.tag][cases.Fold().String(raw)]; ok {
		return v
	}
	return raw
}

// Duration renders a window length the way replies mention it ("24h", "6h", "90m").
func Duration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0m"
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	default:
		return d.Round(time.Second).String()
	}
}

// Timestamp renders an instant in loc with the zone label, e.g. "2025-03-10 12:00 UTC-3".
func Timestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	name, _ := lt.Zone()
	return lt.Format("2006-01-02 15:04") + " " + name
}
