// Package calendar talks to the Google Calendar v3 REST API on behalf of the
// shared calendar identity.
//
// Client is the resilient transport: it attaches a bearer token, refreshes
// the credential once when Google answers 401, and classifies every other
// failure into the apierror taxonomy. Service builds the individual calendar
// operations on top of it and routes the mutating ones through an
// idempotency cache:
//
//	client := calendar.NewClient(tokens, calendar.ClientConfig{})
//	svc := calendar.NewService(client, cache, tokens, calendar.ServiceConfig{})
//
//	page, err := svc.ListEvents(ctx, calendar.ListEventsRequest{
//	    TimeMin:  "2025-03-10T00:00:00+01:00",
//	    TimeMax:  "2025-03-11T00:00:00+01:00",
//	    TimeZone: "Europe/Berlin",
//	})
package calendar
