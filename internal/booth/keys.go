package booth

// Ephemeral store keyspace, per the external interface contract: other
// services may read these keys directly.
const (
	keyHistoryID = "booth:historyID"
	keyCurrentDJ = "booth:currentDJ"
	keyUpvotes   = "booth:upvotes"
	keyDownvotes = "booth:downvotes"
	keyFavorites = "booth:favorites"
	keyWaitlist  = "waitlist"

	lockName = "booth:advancing"
)
