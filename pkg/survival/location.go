package survival

import "time"

// Role describes why a survival location exists. Priority ordering is
// carried by the location's position in the configured list, not by role;
// role is informational for reports and logs.
type Role string

const (
	RolePrimary Role = "primary" // the installed path consumers execute
	RoleBackup  Role = "backup"  // a plain redundant cache copy
	RoleHideout Role = "hideout" // a copy tucked inside another tool's directory
)

// CheckResult is the outcome of the most recent reconciliation pass for a
// single location.
type CheckResult string

const (
	CheckResultUnknown  CheckResult = "unknown"
	CheckResultOK       CheckResult = "ok"
	CheckResultMissing  CheckResult = "missing"
	CheckResultCorrupt  CheckResult = "corrupt"
	CheckResultRepaired CheckResult = "repaired"
	CheckResultFailed   CheckResult = "repair_failed"
)

// Location is one configured filesystem path expected to hold a guardian
// copy. The set of locations is fixed configuration injected at store
// construction; it is never discovered at runtime, and list order defines
// search and repair priority.
type Location struct {
	Path           string
	Role           Role
	Priority       int
	LastCheck      CheckResult
	LastRepairTime time.Time
}
