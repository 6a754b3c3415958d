// Package rules implements the deterministic matcher the support assistant
// falls back to when no generative answer is available. The rule list is
// ordered, immutable, and built once at process start; the final catch-all
// guarantees every non-blank input produces a response.
package rules

import (
	"strings"
)

// EmptyPrompt is returned for blank input, before any rule is evaluated.
const EmptyPrompt = "Please provide a message so I can assist you better."

// Tag values returned alongside responses.
const (
	TagEmpty   = "EMPTY_MESSAGE"
	TagNoMatch = "NO_MATCH"

	exactPrefix   = "EXACT_MATCH: "
	patternPrefix = "PATTERN_MATCH: "
)

// Result is a matched response plus its provenance tag.
type Result struct {
	// Response is the canned reply text.
	Response string
	// Tag identifies the matcher that fired ("EXACT_MATCH: <key>",
	// "PATTERN_MATCH: <id>", "EMPTY_MESSAGE", or "NO_MATCH").
	Tag string
}

// exactRule is a case-insensitive full-string match.
type exactRule struct {
	key      string
	response string
}

// patternRule fires when any of its keywords occurs in the input,
// case-insensitively.
type patternRule struct {
	id       string
	keywords []string
	response string
}

func (p *patternRule) matches(lower string) bool {
	if len(p.keywords) == 0 {
		return true // catch-all
	}
	for _, kw := range p.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Engine evaluates the ordered rule list, first match wins.
type Engine struct {
	exact    []exactRule
	patterns []*patternRule
}

// Option customizes engine construction.
type Option func(*Engine)

// WithExactMatches installs case-insensitive full-string rules, evaluated
// before any pattern rule in the given order.
func WithExactMatches(pairs map[string]string) Option {
	return func(e *Engine) {
		for key, resp := range pairs {
			e.exact = append(e.exact, exactRule{key: key, response: resp})
		}
	}
}

// NewEngine builds the default engine. The built-in pattern list is shared
// and read-only; engines are safe for concurrent use.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{patterns: defaultPatterns}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match evaluates input against the rule list and always returns a response.
// Blank input short-circuits with EmptyPrompt before any rule runs.
func (e *Engine) Match(input string) Result {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Result{Response: EmptyPrompt, Tag: TagEmpty}
	}

	for _, r := range e.exact {
		if strings.EqualFold(trimmed, r.key) {
			return Result{Response: r.response, Tag: exactPrefix + r.key}
		}
	}

	lower := strings.ToLower(trimmed)
	for _, p := range e.patterns {
		if p.matches(lower) {
			return Result{Response: p.response, Tag: patternPrefix + p.id}
		}
	}

	// Unreachable while the catch-all is last; kept so the contract holds if
	// the table is ever reconfigured.
	return Result{
		Response: "I'm sorry, I didn't understand that. Could you please rephrase your question?",
		Tag:      TagNoMatch,
	}
}

// GreetingPatternID is the id of the greeting rule, exported for callers that
// assert on provenance.
const GreetingPatternID = "greeting"

// defaultPatterns is the built-in ordered rule table. Order matters: the
// catch-all must stay last.
var defaultPatterns = []*patternRule{
	{
		id:       GreetingPatternID,
		keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"},
		response: "Hello! Welcome to Energy Management System support. How can I help you today?",
	},
	{
		id:       "devices",
		keywords: []string{"device", "devices"},
		response: "For device-related issues: you can manage your devices from the dashboard. If you need to add a new device, contact your administrator. For device consumption data, check the monitoring section.",
	},
	{
		id:       "consumption",
		keywords: []string{"energy", "consumption", "power", "usage", "kwh"},
		response: "Energy consumption data is available in your dashboard. You can view hourly, daily, and monthly consumption patterns. If you notice unusual consumption, check your device settings or contact support.",
	},
	{
		id:       "login",
		keywords: []string{"login", "password", "forgot", "access", "sign in"},
		response: "For login issues: 1) check your username and password, 2) clear browser cache, 3) try incognito mode. If problems persist, contact your administrator for a password reset.",
	},
	{
		id:       "navigation",
		keywords: []string{"dashboard", "navigate", "menu", "interface"},
		response: "Dashboard navigation: use the main menu to access Users, Devices, and Monitoring sections. Admin users have additional management options. Click on any device to view detailed consumption data.",
	},
	{
		id:       "charts",
		keywords: []string{"chart", "graph", "visualization", "data", "statistics"},
		response: "Charts and visualizations: select a device and date to view consumption charts. You can toggle between line and bar charts. Data is displayed hourly from 00:00 to 23:00.",
	},
	{
		id:       "alerts",
		keywords: []string{"alert", "notification", "warning", "overconsumption"},
		response: "Alerts and notifications: you'll receive real-time notifications for overconsumption events. These appear automatically when device usage exceeds the maximum threshold.",
	},
	{
		id:       "accounts",
		keywords: []string{"user", "account", "profile", "manage users"},
		response: "User management: administrators can create, update, and delete user accounts from the Users section. Regular users can view their profile but cannot modify other accounts.",
	},
	{
		id:       "technical",
		keywords: []string{"error", "bug", "problem", "issue", "not working", "broken"},
		response: "Technical issues: 1) refresh the page, 2) check your internet connection, 3) try a different browser. For persistent issues, please describe the exact error message you're seeing.",
	},
	{
		id:       "requirements",
		keywords: []string{"requirement", "browser", "system", "compatibility"},
		response: "System requirements: the system works best with modern browsers (Chrome, Firefox, Safari, Edge). Ensure JavaScript is enabled and you have a stable internet connection.",
	},
	{
		id:       "export",
		keywords: []string{"export", "download", "save", "report"},
		response: "Data export: currently you can view consumption data in charts. For detailed reports or data export features, please contact your administrator.",
	},
	{
		id:       "contact",
		keywords: []string{"contact", "support", "help", "admin", "administrator"},
		response: "Contact support: for issues not resolved by this assistant, you can reach out to your system administrator. They have access to advanced troubleshooting and account management tools.",
	},
	{
		id:       "farewell",
		keywords: []string{"bye", "goodbye", "thank you", "thanks", "see you"},
		response: "Thank you for using Energy Management System support! If you need further assistance, feel free to ask. Have a great day!",
	},
	{
		// catch-all, must be last
		id:       "default",
		keywords: nil,
		response: "I'm here to help with Energy Management System questions. You can ask me about devices, energy consumption, login issues, dashboard navigation, or technical problems. What would you like to know?",
	},
}
