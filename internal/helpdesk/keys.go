package helpdesk

import (
	"strconv"

	"github.com/opsdesk/opsdesk-go/internal/querycache"
)

// Canonical query keys. All cache reads and invalidations use these
// constructors; ad-hoc keys would silently escape prefix invalidation.

// ticketListPrefix covers every ticket list regardless of filter.
func ticketListPrefix() querycache.Key {
	return querycache.Key{"tickets", "list"}
}

// ticketListKey identifies one filtered ticket list. The filter is a
// parameter object so structurally equal filters share an entry.
func ticketListKey(status string) querycache.Key {
	params := map[string]string{}
	if status != "" {
		params["status"] = status
	}

	return querycache.Key{"tickets", "list", params}
}

func ticketDetailKey(id int) querycache.Key {
	return querycache.Key{"tickets", "detail", id}
}

func ticketCommentsKey(id int) querycache.Key {
	return querycache.Key{"tickets", "comments", id}
}

func usersKey() querycache.Key {
	return querycache.Key{"users", "list"}
}

func dashboardStatsKey() querycache.Key {
	return querycache.Key{"dashboard", "stats"}
}

func monthlyReportKey(year, month int) querycache.Key {
	return querycache.Key{"reports", "monthly", map[string]string{
		"year":  strconv.Itoa(year),
		"month": strconv.Itoa(month),
	}}
}
