package redis

import "fmt"

const ns = "cinebook:v1"

// KeyShowAvailable holds the cached count of free seats of a show.
func KeyShowAvailable(showID int64) string {
	return fmt.Sprintf("%s:show:%d:available", ns, showID)
}

// KeyShowVersion is bumped on every invalidation of a show's cached data.
func KeyShowVersion(showID int64) string {
	return fmt.Sprintf("%s:show:%d:version", ns, showID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemBooking(showID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%d:%s", ns, showID, idemKey)
}

func ChannelShowsChanged() string {
	return ns + ":shows:changed"
}
