// Package availability suggests free meeting slots inside a time window
// given the busy intervals of one or more calendars.
package availability
