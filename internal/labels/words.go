package labels

// Word lists are built once at package initialization and never mutated.
// Accessors return copies.

var badWords = toSet(
	"fraud", "suspicious", "unauthorized", "identity", "stolen", "compromised",
	"suspicion", "alert", "illegal", "forgery", "laundering", "phishing",
	"hacking", "scam", "threat", "risk", "suspicion", "account", "credit",
	"debit", "suspicious", "transaction", "security", "safety", "monitor",
	"watch", "detect", "unusual", "activity", "unauthorized", "access",
	"vulnerable", "exploit", "malicious", "fraudulent", "sensitive", "breach",
	"compromise", "alert", "safeguard", "investigate", "verify", "validate",
	"authenticate", "verify", "phishing", "suspicious", "website", "password",
	"suspicion", "identity", "verification", "cybercrime", "cybersecurity",
	"encryption", "firewall", "cyber", "ransomware", "virus", "threat",
	"cyberattack", "monitoring", "detection", "anomaly", "suspicious",
	"behavior", "forensic", "transaction", "blockchain", "bitcoin", "crypto",
	"currency", "aml", "kyc", "compliance", "regulation", "suspicion",
	"government", "investigation", "fraud", "crime", "phishing", "hack",
	"cybersecurity", "scam", "identity", "theft", "money", "laundering",
	"suspicious", "transaction", "unauthorized", "access",
)

// Reference-number noise, custodian and institution codes, country names.
var exclusions = toSet(
	// reference noise
	"ref", "our", "ext", "ben", "sha", "oth", "bic", "iban", "swift", "trn",
	"msg", "seq", "nbr", "num", "uetr", "fin", "txn",
	// institutions
	"bnp", "paribas", "sgss", "cacib", "caceis", "hsbc", "jpm", "citi",
	"bny", "mellon", "ubs", "natixis", "societe", "generale", "barclays",
	"deutsche", "bank", "banque", "state", "street", "clearstream",
	"euroclear",
	// countries
	"france", "germany", "luxembourg", "ireland", "belgium", "spain",
	"italy", "netherlands", "switzerland", "austria", "portugal", "sweden",
	"norway", "denmark", "finland", "poland", "japan", "china", "canada",
	"australia", "singapore", "united", "kingdom", "states", "america",
)

// ISO 4217 codes recognised in free text. Codes that are also English
// words ("all", "try", "pen", "cop", "ron") are left out.
var currencies = toSet(
	"eur", "usd", "gbp", "chf", "jpy", "cad", "aud", "nzd", "sek", "nok",
	"dkk", "pln", "czk", "huf", "bgn", "hkd", "sgd", "cny", "cnh", "inr",
	"idr", "myr", "php", "thb", "krw", "twd", "brl", "mxn", "clp", "zar",
	"ils", "aed", "sar", "qar", "kwd", "rub",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}

// BadWords returns the suspicious-keyword set (unordered, deduplicated).
func BadWords() []string { return keys(badWords) }

// Exclusions returns the noise tokens dropped during normalization.
func Exclusions() []string { return keys(exclusions) }

// Currencies returns the currency codes masked as CurrencyMarker.
func Currencies() []string { return keys(currencies) }
