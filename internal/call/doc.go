// Package call tracks the active transmission per talkgroup: lifecycle
// transitions, missed-start recovery, and timeout-based cleanup.
package call
