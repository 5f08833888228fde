package domain

// Access levels are named capability sets, not a total order. CO_OWNER adds
// grant management on top of READ_WRITE; UPLOAD_ONLY and READ_ONLY are
// disjoint capabilities below both.
const (
	AccessLevelCoOwner    = "CO_OWNER"
	AccessLevelReadWrite  = "READ_WRITE"
	AccessLevelReadOnly   = "READ_ONLY"
	AccessLevelUploadOnly = "UPLOAD_ONLY"
)

// ValidAccessLevels lists every recognized access level. Matching is
// case-sensitive: levels must be supplied in all uppercase.
var ValidAccessLevels = []string{
	AccessLevelCoOwner,
	AccessLevelReadWrite,
	AccessLevelReadOnly,
	AccessLevelUploadOnly,
}

// Named groupings callers use to express "this operation requires at least
// one of these levels".
var (
	CoOwnerOnly        = []string{AccessLevelCoOwner}
	ReadWriteOrHigher  = []string{AccessLevelReadWrite, AccessLevelCoOwner}
	ReadOnlyOrHigher   = []string{AccessLevelReadOnly, AccessLevelReadWrite, AccessLevelCoOwner}
	UploadOnlyOrHigher = []string{AccessLevelUploadOnly, AccessLevelReadWrite, AccessLevelCoOwner}
)

// IsValidAccessLevel reports whether level is one of the four constants.
func IsValidAccessLevel(level string) bool {
	for _, valid := range ValidAccessLevels {
		if level == valid {
			return true
		}
	}
	return false
}

// ValidateAccessLevels fails with InvalidAccessLevel on the first entry that
// is not a recognized level. Grant and access-check operations call this
// before touching the store.
func ValidateAccessLevels(levels []string) error {
	for _, level := range levels {
		if !IsValidAccessLevel(level) {
			return InvalidAccessLevel(level)
		}
	}
	return nil
}
