package extraction

import "time"

// lexicon holds the per-locale signal vocabulary. All entries are
// lowercase; matching is done on lowercased text.
type lexicon struct {
	// strongPhrases are multi-word phrases that confirm cancellation
	// intent on their own.
	strongPhrases []string
	// Weak signal categories. Intent needs at least two of them to
	// co-occur when no strong phrase is present.
	cancelVerbs       []string
	cancelNouns       []string
	subscriptionNouns []string
	relocationNouns   []string
	// markers vote in language detection.
	markers []string
	// monthNames map locale month words to calendar months for date
	// extraction.
	monthNames map[string]time.Month
}

var lexicons = map[Language]lexicon{
	LangNorwegian: {
		strongPhrases: []string{
			"si opp abonnementet", "sier opp abonnementet", "vil si opp",
			"ønsker å si opp", "skal si opp", "kansellere abonnementet",
			"avslutte abonnementet", "oppsigelse av abonnement",
			"si opp avtalen", "avslutte avtalen",
		},
		cancelVerbs:       []string{"si opp", "sier opp", "sagt opp", "kansellere", "avslutte", "terminere"},
		cancelNouns:       []string{"oppsigelse", "oppsigelsen", "kansellering", "avslutning"},
		subscriptionNouns: []string{"abonnement", "abonnementet", "avtale", "avtalen", "medlemskap", "ladeabonnement"},
		relocationNouns:   []string{"flytte", "flytter", "flytting", "ny adresse", "selger leiligheten", "selger boligen"},
		markers:           []string{"jeg", "ikke", "hei", "takk", "vennlig", "hilsen", "mitt", "skal", "ønsker"},
		monthNames: map[string]time.Month{
			"januar": time.January, "februar": time.February, "mars": time.March,
			"april": time.April, "mai": time.May, "juni": time.June,
			"juli": time.July, "august": time.August, "september": time.September,
			"oktober": time.October, "november": time.November, "desember": time.December,
		},
	},
	LangEnglish: {
		strongPhrases: []string{
			"cancel my subscription", "cancel the subscription",
			"terminate my subscription", "end my subscription",
			"wish to cancel", "want to cancel", "would like to cancel",
			"cancel my agreement", "terminate the agreement",
		},
		cancelVerbs:       []string{"cancel", "terminate", "discontinue", "stop my"},
		cancelNouns:       []string{"cancellation", "termination"},
		subscriptionNouns: []string{"subscription", "membership", "agreement", "charging plan"},
		relocationNouns:   []string{"moving", "relocating", "move out", "new address", "sold the apartment", "sold our apartment"},
		markers:           []string{"the", "hello", "thanks", "thank", "please", "regards", "would", "have"},
		monthNames: map[string]time.Month{
			"january": time.January, "february": time.February, "march": time.March,
			"april": time.April, "may": time.May, "june": time.June,
			"july": time.July, "august": time.August, "september": time.September,
			"october": time.October, "november": time.November, "december": time.December,
		},
	},
	LangGerman: {
		strongPhrases: []string{
			"abonnement kündigen", "abo kündigen", "vertrag kündigen",
			"möchte kündigen", "hiermit kündige ich", "kündige mein abonnement",
			"möchte meinen vertrag beenden",
		},
		cancelVerbs:       []string{"kündigen", "kündige", "beenden", "stornieren", "auflösen"},
		cancelNouns:       []string{"kündigung", "stornierung", "vertragsende"},
		subscriptionNouns: []string{"abonnement", "abonnements", "abo", "vertrag", "mitgliedschaft", "ladetarif"},
		relocationNouns:   []string{"umzug", "umziehen", "ziehe um", "neue adresse", "wohnung verkauft"},
		markers:           []string{"ich", "nicht", "und", "hallo", "danke", "bitte", "grüße", "möchte"},
		monthNames: map[string]time.Month{
			"januar": time.January, "februar": time.February, "märz": time.March,
			"april": time.April, "mai": time.May, "juni": time.June,
			"juli": time.July, "august": time.August, "september": time.September,
			"oktober": time.October, "november": time.November, "dezember": time.December,
		},
	},
}

// guardPhrases short-circuit intent detection. Naive keyword matching
// over-triggers on tangential mentions of subscription or account words
// in unrelated support tickets (feedback surveys, installer questions,
// login problems, live charging-session issues), so these run first and
// suppress intent unless a strong cancellation phrase is also present.
var guardPhrases = []string{
	// Feedback and surveys
	"feedback", "survey", "undersøkelse", "tilbakemelding", "umfrage",
	"how did we do", "rate your experience", "kundeundersøkelse",
	// Installer / technical support
	"installer", "installation", "installatør", "montering", "elektriker",
	"electrician", "technical issue", "teknisk feil", "techniker",
	// Account / login issues
	"can't log in", "cannot log in", "unable to log in", "password reset",
	"får ikke logget inn", "glemt passord", "passwort vergessen",
	"anmeldung funktioniert nicht", "login",
	// Active charging-session problems
	"not charging", "charging session", "ladeøkt", "lading fungerer ikke",
	"laderen virker ikke", "ladevorgang", "lädt nicht",
}

// paymentEntry maps payment-issue phrases to a concern tag.
type paymentEntry struct {
	tag     string
	phrases []string
}

// paymentLexicon is scanned independently of intent detection.
var paymentLexicon = []paymentEntry{
	{tag: "double_charge", phrases: []string{
		"charged twice", "double charge", "double-charged", "trukket to ganger",
		"dobbel trekk", "dobbelt trukket", "doppelt abgebucht", "zweimal abgebucht",
	}},
	{tag: "refund_request", phrases: []string{
		"refund", "refusjon", "tilbakebetaling", "penger tilbake",
		"rückerstattung", "geld zurück",
	}},
	{tag: "billing_error", phrases: []string{
		"billing error", "wrong invoice", "incorrect invoice", "feil faktura",
		"feil på fakturaen", "faktura er feil", "falsche rechnung", "rechnungsfehler",
	}},
	{tag: "unexpected_charge", phrases: []string{
		"unexpected charge", "charged even though", "trukket selv om",
		"uventet trekk", "abgebucht obwohl",
	}},
}

// edgeEntry maps an edge case to its detection phrases.
type edgeEntry struct {
	edge    EdgeCase
	phrases []string
}

// edgeLexicon is scanned in fixed priority order; the first matching
// category wins.
var edgeLexicon = []edgeEntry{
	{edge: EdgeAlreadyCanceled, phrases: []string{
		"already canceled", "already cancelled", "allerede sagt opp",
		"har allerede avsluttet", "sa opp i forrige", "bereits gekündigt",
		"schon gekündigt", "canceled last month", "cancelled last month",
	}},
	{edge: EdgeNoAppAccess, phrases: []string{
		"no access to the app", "don't have access to the app",
		"do not have the app", "don't have the app", "can't use the app",
		"without the app", "har ikke appen", "har ikke tilgang til appen",
		"får ikke brukt appen", "uten appen", "habe die app nicht",
		"keinen zugriff auf die app", "ohne die app",
	}},
	{edge: EdgePaymentDispute, phrases: []string{
		"dispute the charge", "dispute this charge", "chargeback",
		"bestrider", "bestrider fakturaen", "klage på faktura",
		"widerspruch gegen die rechnung", "refuse to pay", "nekter å betale",
		"weigere mich zu zahlen",
	}},
	{edge: EdgeCorporateAccount, phrases: []string{
		"company account", "corporate account", "business account",
		"on behalf of the company", "bedriftsavtale", "firmaavtale",
		"på vegne av firmaet", "firmenkonto", "geschäftskonto",
		"im namen der firma",
	}},
	{edge: EdgeSameieConcern, phrases: []string{
		"sameie", "sameiet", "borettslag", "borettslaget", "styret",
		"housing association", "housing co-op", "homeowners association",
		"eigentümergemeinschaft", "hausverwaltung",
	}},
	{edge: EdgeImmediateTermination, phrases: []string{
		"effective immediately", "cancel immediately", "terminate immediately",
		"med umiddelbar virkning", "si opp umiddelbart", "avslutte umiddelbart",
		"mit sofortiger wirkung", "sofort kündigen",
	}},
	{edge: EdgeFutureMoveDate, phrases: []string{
		"later this year", "in a few months", "not until", "om noen måneder",
		"først til", "senere i år", "erst in ein paar monaten", "erst im",
	}},
}

// urgentPhrases mark an immediate-urgency request independent of dates.
var urgentPhrases = []string{
	"immediately", "as soon as possible", "asap", "umiddelbart", "snarest",
	"så fort som mulig", "sofort", "so schnell wie möglich", "umgehend",
}

// concernEntry maps customer-concern phrases to a topic tag.
type concernEntry struct {
	tag     string
	phrases []string
}

var concernLexicon = []concernEntry{
	{tag: "price", phrases: []string{"too expensive", "price", "pris", "dyrt", "for dyr", "teuer", "preis"}},
	{tag: "moving", phrases: []string{"moving", "move out", "flytte", "flytter", "flytting", "umzug", "umziehen"}},
	{tag: "app", phrases: []string{"app", "appen"}},
	{tag: "invoice", phrases: []string{"invoice", "faktura", "rechnung", "billing"}},
	{tag: "charger_ownership", phrases: []string{"keep the charger", "beholde laderen", "ta med laderen", "ladebox mitnehmen", "wallbox mitnehmen"}},
}

// riskEntry maps phrases to a policy-risk warning. More than one risk
// triggers escalation.
type riskEntry struct {
	warning string
	phrases []string
}

var riskLexicon = []riskEntry{
	{warning: "legal threat language present", phrases: []string{
		"lawyer", "legal action", "advokat", "rettslige skritt", "anwalt", "rechtliche schritte", "forbrukerrådet",
	}},
	{warning: "statutory withdrawal right mentioned", phrases: []string{
		"angrerett", "right of withdrawal", "withdrawal right", "widerruf", "widerrufsrecht",
	}},
	{warning: "data-protection request present", phrases: []string{
		"gdpr", "delete my data", "personvern", "slette mine data", "daten löschen", "datenschutz",
	}},
	{warning: "binding-period dispute", phrases: []string{
		"bindingstid", "binding period", "contract period", "mindestlaufzeit", "bindungszeit",
	}},
}
