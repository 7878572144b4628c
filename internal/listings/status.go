package listings

// Status is the provider's publication state of an ad.
type Status int

const (
	StatusUnknown           Status = 0
	StatusDraft             Status = 1
	StatusPublished         Status = 2
	StatusPublishedPromoted Status = 3
	StatusModeration        Status = 4
	StatusArchived          Status = 5
	StatusSold              Status = 6
	StatusRemoved           Status = 7
	StatusBlocked           Status = 8
)

// StatusFromCode maps a wire code onto the closed enumeration. Codes the
// table does not know become StatusUnknown.
func StatusFromCode(n Number) Status {
	if !n.Valid || n.Value < 0 || n.Value > 1<<16 || n.Value != float64(int(n.Value)) {
		return StatusUnknown
	}
	switch s := Status(int(n.Value)); s {
	case StatusDraft, StatusPublished, StatusPublishedPromoted, StatusModeration,
		StatusArchived, StatusSold, StatusRemoved, StatusBlocked:
		return s
	default:
		return StatusUnknown
	}
}

// Active reports whether ads in this state count as currently listed.
// Anything not explicitly listed is inactive.
func (s Status) Active() bool {
	switch s {
	case StatusPublished, StatusPublishedPromoted:
		return true
	case StatusUnknown, StatusDraft, StatusModeration, StatusArchived,
		StatusSold, StatusRemoved, StatusBlocked:
		return false
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusPublished:
		return "published"
	case StatusPublishedPromoted:
		return "published_promoted"
	case StatusModeration:
		return "moderation"
	case StatusArchived:
		return "archived"
	case StatusSold:
		return "sold"
	case StatusRemoved:
		return "removed"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}
