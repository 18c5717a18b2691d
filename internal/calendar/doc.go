// Package calendar provides a client for the Google Calendar API.
//
// A Client is bound to one user's token source and offers listing, reading,
// creating, updating and deleting events on a calendar, plus listing the
// user's calendars. Service hands out clients per user from a
// google.TokenProvider, typically the session broker.
//
// Example usage:
//
//	svc := calendar.NewService(broker, calendar.ClientConfig{}, logger)
//	client, err := svc.ForUser(ctx, userID)
//	if err != nil {
//	    return err
//	}
//	events, err := client.ListEvents(ctx, calendar.PrimaryCalendar, time.Now(), time.Now().AddDate(0, 0, 7), "", 25)
package calendar
