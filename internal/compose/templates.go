package compose

import (
	"fmt"
	"time"

	"github.com/voltgrid/cancelflow/internal/extraction"
)

// localeTemplate holds every fixed phrase used to assemble a draft in
// one locale. Drafts are built from these parts only; free-form text
// never enters a draft.
type localeTemplate struct {
	greeting      string
	ackNeutral    string
	ackApologetic string
	empathy       string

	// standardBody confirms a plain cancellation; edgeBodies replace it
	// when the extraction carries an edge-case tag.
	standardBody string
	edgeBodies   map[extraction.EdgeCase]string

	// moveDateFormat takes the rendered calendar date.
	moveDateFormat string

	policyPhrase string
	appPhrase    string

	paymentRefund  string
	paymentDouble  string
	paymentBilling string
	paymentGeneric string

	closing string

	// Lexicons for tone adaptation and validation.
	apologyWords []string
	empathyWords []string
	politeWords  []string

	months [12]string
}

var templates = map[extraction.Language]localeTemplate{
	extraction.LangNorwegian: {
		greeting:      "Hei,",
		ackNeutral:    "Takk for din henvendelse.",
		ackApologetic: "Vi beklager ulempen dette har medført, og takk for din henvendelse.",
		empathy:       "Vi forstår at dette kan være en krevende situasjon.",

		standardBody: "Vi bekrefter at vi har mottatt oppsigelsen av ladeabonnementet ditt.",
		edgeBodies: map[extraction.EdgeCase]string{
			extraction.EdgeAlreadyCanceled:      "Abonnementet ditt er allerede registrert som oppsagt, så du trenger ikke foreta deg noe mer.",
			extraction.EdgeNoAppAccess:          "Siden du ikke har tilgang til appen, registrerer vi oppsigelsen manuelt for deg.",
			extraction.EdgePaymentDispute:       "Vi ser at du har spørsmål rundt fakturering, og vi går gjennom betalingshistorikken din sammen med oppsigelsen.",
			extraction.EdgeCorporateAccount:     "Siden abonnementet er registrert på en bedrift, må oppsigelsen bekreftes av en autorisert kontaktperson hos dere.",
			extraction.EdgeSameieConcern:        "Laderen og den felles infrastrukturen i sameiet berøres ikke av at ditt abonnement avsluttes.",
			extraction.EdgeImmediateTermination: "Vi har registrert at du ønsker avslutning så raskt som mulig, og behandler saken din med prioritet.",
			extraction.EdgeFutureMoveDate:       "Vi har notert at flyttingen ligger frem i tid, og abonnementet løper som normalt frem til datoen du oppga.",
		},

		moveDateFormat: "Vi har registrert ønsket flyttedato %s.",

		policyPhrase: "Oppsigelsen trer i kraft ved utgangen av inneværende måned.",
		appPhrase:    "Du kan også administrere abonnementet ditt direkte i appen under Innstillinger.",

		paymentRefund:  "Refusjonen vil bli behandlet og utbetalt til samme betalingsmiddel innen 5-10 virkedager.",
		paymentDouble:  "Den doble belastningen vil bli korrigert, og det overskytende beløpet tilbakeføres.",
		paymentBilling: "Vi retter faktureringsfeilen og sender deg en oppdatert faktura.",
		paymentGeneric: "Vi går gjennom betalingen din og kommer tilbake til deg med en avklaring.",

		closing: "Med vennlig hilsen\nKundeservice",

		apologyWords: []string{"beklager", "beklage", "unnskyld", "lei oss"},
		empathyWords: []string{"forstår", "forståelse", "krevende", "vanskelig"},
		politeWords:  []string{"takk", "vennlig hilsen", "hei"},

		months: [12]string{"januar", "februar", "mars", "april", "mai", "juni",
			"juli", "august", "september", "oktober", "november", "desember"},
	},

	extraction.LangEnglish: {
		greeting:      "Hello,",
		ackNeutral:    "Thank you for reaching out.",
		ackApologetic: "We are sorry for the inconvenience, and thank you for reaching out.",
		empathy:       "We understand this can be a stressful situation.",

		standardBody: "We confirm that we have received the cancellation of your charging subscription.",
		edgeBodies: map[extraction.EdgeCase]string{
			extraction.EdgeAlreadyCanceled:      "Your subscription is already registered as canceled, so no further action is needed from you.",
			extraction.EdgeNoAppAccess:          "Since you do not have access to the app, we will register the cancellation manually for you.",
			extraction.EdgePaymentDispute:       "We can see you have questions about your billing, and we will review your payment history together with the cancellation.",
			extraction.EdgeCorporateAccount:     "As the subscription is registered to a company, the cancellation must be confirmed by an authorized contact person.",
			extraction.EdgeSameieConcern:        "The charger and the shared infrastructure in your building are not affected when your subscription ends.",
			extraction.EdgeImmediateTermination: "We have noted that you want the termination processed as soon as possible and will prioritize your case.",
			extraction.EdgeFutureMoveDate:       "We have noted that your move is some time away; the subscription runs as normal until the date you provided.",
		},

		moveDateFormat: "We have registered your requested move date of %s.",

		policyPhrase: "Your cancellation takes effect at the end of the current month.",
		appPhrase:    "You can also manage your subscription directly in the app under Settings.",

		paymentRefund:  "Your refund will be processed and returned to the same payment method within 5-10 business days.",
		paymentDouble:  "The duplicate charge will be corrected and the excess amount refunded.",
		paymentBilling: "We will correct the billing error and send you an updated invoice.",
		paymentGeneric: "We will review the payment and get back to you with a clarification.",

		closing: "Kind regards\nCustomer Support",

		apologyWords: []string{"sorry", "apolog"},
		empathyWords: []string{"understand", "stressful", "difficult"},
		politeWords:  []string{"thank", "regards", "hello"},

		months: [12]string{"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December"},
	},

	extraction.LangGerman: {
		greeting:      "Guten Tag,",
		ackNeutral:    "Vielen Dank für Ihre Nachricht.",
		ackApologetic: "Wir entschuldigen uns für die Unannehmlichkeiten und danken Ihnen für Ihre Nachricht.",
		empathy:       "Wir verstehen, dass dies eine belastende Situation sein kann.",

		standardBody: "Wir bestätigen den Eingang der Kündigung Ihres Ladeabonnements.",
		edgeBodies: map[extraction.EdgeCase]string{
			extraction.EdgeAlreadyCanceled:      "Ihr Abonnement ist bereits als gekündigt vermerkt, Sie müssen nichts weiter unternehmen.",
			extraction.EdgeNoAppAccess:          "Da Sie keinen Zugang zur App haben, erfassen wir die Kündigung manuell für Sie.",
			extraction.EdgePaymentDispute:       "Wir sehen, dass Sie Fragen zu Ihrer Abrechnung haben, und prüfen Ihre Zahlungshistorie zusammen mit der Kündigung.",
			extraction.EdgeCorporateAccount:     "Da das Abonnement auf ein Unternehmen läuft, muss die Kündigung von einer autorisierten Kontaktperson bestätigt werden.",
			extraction.EdgeSameieConcern:        "Die Ladestation und die gemeinsame Infrastruktur in Ihrem Gebäude sind von der Kündigung nicht betroffen.",
			extraction.EdgeImmediateTermination: "Wir haben vermerkt, dass Sie eine schnellstmögliche Beendigung wünschen, und behandeln Ihren Fall mit Priorität.",
			extraction.EdgeFutureMoveDate:       "Wir haben vermerkt, dass Ihr Umzug noch bevorsteht; das Abonnement läuft bis zum angegebenen Datum normal weiter.",
		},

		moveDateFormat: "Wir haben den %s als gewünschtes Umzugsdatum vermerkt.",

		policyPhrase: "Die Kündigung wird zum Ende des laufenden Monats wirksam.",
		appPhrase:    "Sie können Ihr Abonnement auch direkt in der App unter Einstellungen verwalten.",

		paymentRefund:  "Ihre Rückerstattung wird bearbeitet und innerhalb von 5-10 Werktagen auf dasselbe Zahlungsmittel zurückgebucht.",
		paymentDouble:  "Die doppelte Abbuchung wird korrigiert und der überschüssige Betrag erstattet.",
		paymentBilling: "Wir korrigieren den Abrechnungsfehler und senden Ihnen eine aktualisierte Rechnung.",
		paymentGeneric: "Wir prüfen die Zahlung und melden uns mit einer Klärung bei Ihnen.",

		closing: "Mit freundlichen Grüßen\nKundenservice",

		apologyWords: []string{"entschuldig", "bedauern", "leid"},
		empathyWords: []string{"verstehen", "verständnis", "belastend"},
		politeWords:  []string{"dank", "grüßen", "guten tag"},

		months: [12]string{"Januar", "Februar", "März", "April", "Mai", "Juni",
			"Juli", "August", "September", "Oktober", "November", "Dezember"},
	},
}

// templateFor returns the template for a locale, falling back to the
// primary market when the language is unknown.
func templateFor(lang extraction.Language) localeTemplate {
	if t, ok := templates[lang]; ok {
		return t
	}
	return templates[extraction.LangNorwegian]
}

// formatDate renders a calendar date with the month spelled out in the
// draft's language. Numeric dates are never written into a draft: the
// defensive PII pass would mistake them for phone numbers.
func formatDate(d time.Time, t localeTemplate, lang extraction.Language) string {
	month := t.months[d.Month()-1]
	if lang == extraction.LangEnglish {
		return fmt.Sprintf("%d %s %d", d.Day(), month, d.Year())
	}
	return fmt.Sprintf("%d. %s %d", d.Day(), month, d.Year())
}
