package google

// CalendarScope grants read/write access to the user's calendars.
const CalendarScope = "https://www.googleapis.com/auth/calendar"

// DefaultOAuthScopes are the scopes requested during bootstrap.
var DefaultOAuthScopes = []string{
	CalendarScope,
}

// Default Google OAuth endpoints.
const (
	DefaultAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
)
