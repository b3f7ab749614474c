package generate

import (
	"fmt"
	"math/rand"
	"strings"
)

// Wordlists for synthetic identities. Drawn with the structural RNG so
// the same seed always yields the same people and products.

var firstNames = []string{
	"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael",
	"Linda", "David", "Elizabeth", "William", "Barbara", "Richard", "Susan",
	"Joseph", "Jessica", "Thomas", "Sarah", "Charles", "Karen", "Christopher",
	"Lisa", "Daniel", "Nancy", "Matthew", "Betty", "Anthony", "Margaret",
	"Mark", "Sandra", "Donald", "Ashley", "Steven", "Kimberly", "Paul",
	"Emily", "Andrew", "Donna", "Joshua", "Michelle", "Kenneth", "Carol",
	"Kevin", "Amanda", "Brian", "Dorothy", "George", "Melissa", "Timothy",
	"Deborah",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
	"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
	"Lee", "Perez", "Thompson", "White", "Harris", "Sanchez", "Clark",
	"Ramirez", "Lewis", "Robinson", "Walker", "Young", "Allen", "King",
	"Wright", "Scott", "Torres", "Nguyen", "Hill", "Flores", "Green",
	"Adams", "Nelson", "Baker", "Hall", "Rivera", "Campbell", "Mitchell",
	"Carter", "Roberts",
}

var countries = []string{
	"United States", "Germany", "France", "United Kingdom", "Canada",
	"Australia", "Japan", "Brazil", "Mexico", "Spain", "Italy",
	"Netherlands", "Sweden", "Norway", "Poland", "Portugal", "Austria",
	"Switzerland", "Ireland", "Belgium", "Denmark", "Finland", "India",
	"South Korea", "New Zealand", "Argentina", "Chile", "Colombia",
	"South Africa", "Singapore",
}

var emailDomains = []string{
	"example.com", "example.org", "example.net", "mail.test", "inbox.test",
	"post.test", "webmail.test",
}

// Catch-phrase fragments for product names.
var phraseAdjectives = []string{
	"Adaptive", "Automated", "Balanced", "Centralized", "Compatible",
	"Configurable", "Digitized", "Distributed", "Enhanced", "Ergonomic",
	"Expanded", "Focused", "Integrated", "Intuitive", "Modular",
	"Optimized", "Persistent", "Polarized", "Reactive", "Seamless",
	"Streamlined", "Synergistic", "Universal", "Versatile", "Visionary",
}

var phraseNouns = []string{
	"access", "analyzer", "array", "capability", "circuit", "concept",
	"framework", "hardware", "hub", "installation", "interface", "matrix",
	"monitoring", "paradigm", "pricing", "projection", "protocol",
	"solution", "structure", "system", "throughput", "toolset", "utility",
	"website", "workforce",
}

var phraseModifiers = []string{
	"24hour", "background", "bifurcated", "bottom-line", "clear-thinking",
	"dedicated", "didactic", "dynamic", "executive", "full-range",
	"global", "high-level", "holistic", "local", "multi-tasking",
	"national", "needs-based", "object-oriented", "radical", "regional",
	"scalable", "secondary", "systematic", "tertiary", "zero-defect",
}

var productCategories = []string{
	"Electronics", "Clothing", "Food", "Books", "Home", "Sports", "Toys",
}

func pick(rng *rand.Rand, words []string) string {
	return words[rng.Intn(len(words))]
}

func personName(rng *rand.Rand) string {
	return pick(rng, firstNames) + " " + pick(rng, lastNames)
}

func emailAddress(rng *rand.Rand) string {
	user := strings.ToLower(pick(rng, firstNames)) + "." + strings.ToLower(pick(rng, lastNames))
	return fmt.Sprintf("%s%d@%s", user, rng.Intn(10000), pick(rng, emailDomains))
}

// fallbackEmail builds a guaranteed-unique address when random draws
// keep colliding with the global set.
func fallbackEmail(rng *rand.Rand, customerID int64, tag string) string {
	user := strings.ToLower(pick(rng, firstNames))
	return fmt.Sprintf("%s_%d_%s@%s", user, customerID, tag, pick(rng, emailDomains))
}

func catchPhrase(rng *rand.Rand) string {
	return pick(rng, phraseAdjectives) + " " + pick(rng, phraseModifiers) + " " + pick(rng, phraseNouns)
}
