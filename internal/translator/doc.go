// Package translator converts household records into Google Calendar event
// payloads. It is pure: no I/O, no clock, no configuration.
//
// Each record kind has a fixed policy:
//
//	kind        summary prefix   duration  reminders
//	careTask    "Plant Care: "   30m       popup 15, email 60
//	project     "Project: "      60m       popup 30, email 1440
//	simpleTask  "Task: "         30m       popup 15
package translator
