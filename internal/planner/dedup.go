package planner

import (
	"fmt"
	"sort"
	"time"

	appLog "studyplan/internal/log"
	"studyplan/internal/model"
)

// unassignedKey stands in for a nil course id in the grouping key. It cannot
// collide with a uuid.
const unassignedKey = "\x00unassigned"

// DedupResult is the decision of one deduplication pass. Nothing is deleted
// here; the caller removes Removed through its store.
type DedupResult struct {
	Survivors []model.Session
	Removed   []model.Session
	// Replaced maps each removed id to the id of its group's survivor.
	Replaced map[string]string
	// Skipped holds sessions lacking an id or owner.
	Skipped []model.Session
}

// DedupReport summarizes a pass for logs and API responses.
type DedupReport struct {
	SurvivorCount int      `json:"survivor_count"`
	RemovedCount  int      `json:"removed_count"`
	RemovedIDs    []string `json:"removed_ids"`
}

// Report condenses the result.
func (r DedupResult) Report() DedupReport {
	ids := make([]string, 0, len(r.Removed))
	for _, s := range r.Removed {
		ids = append(ids, s.ID)
	}
	return DedupReport{
		SurvivorCount: len(r.Survivors),
		RemovedCount:  len(r.Removed),
		RemovedIDs:    ids,
	}
}

// slotKey identifies one logical slot: two sessions with the same key are
// the same study session.
type slotKey struct {
	owner    string
	course   string
	date     string
	start    string
	end      string
	duration int
}

func keyOf(s model.Session) slotKey {
	course := unassignedKey
	if s.CourseID != nil {
		course = *s.CourseID
	}
	return slotKey{
		owner:    s.OwnerID,
		course:   course,
		date:     dateKey(s.Date),
		start:    s.StartTime,
		end:      s.EndTime,
		duration: s.DurationMinutes,
	}
}

func dateKey(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// Deduplicate partitions sessions into slot groups and keeps one survivor per
// group: the most recently modified, ties broken by the greater id. If
// ownerFilter is non-empty, sessions of other owners are left out of the
// result entirely. Output order follows the input order of survivors.
func Deduplicate(sessions []model.Session, ownerFilter string) DedupResult {
	res := DedupResult{Replaced: make(map[string]string)}

	groups := make(map[slotKey][]int)
	var order []slotKey
	for i, s := range sessions {
		if ownerFilter != "" && s.OwnerID != ownerFilter {
			continue
		}
		if s.ID == "" || s.OwnerID == "" {
			appLog.Warn("dedup: skipping session without primary key",
				"id", s.ID, "owner", s.OwnerID, "date", dateKey(s.Date))
			res.Skipped = append(res.Skipped, s)
			continue
		}
		k := keyOf(s)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	survivorIdx := make(map[int]bool, len(order))
	for _, k := range order {
		idx := groups[k]
		if len(idx) == 1 {
			survivorIdx[idx[0]] = true
			continue
		}
		sort.SliceStable(idx, func(a, b int) bool {
			sa, sb := sessions[idx[a]], sessions[idx[b]]
			if sa.LastModified != sb.LastModified {
				return sa.LastModified > sb.LastModified
			}
			return sa.ID > sb.ID
		})
		survivorIdx[idx[0]] = true
		for _, i := range idx[1:] {
			res.Removed = append(res.Removed, sessions[i])
			res.Replaced[sessions[i].ID] = sessions[idx[0]].ID
		}
		appLog.Debug("dedup: collapsed slot",
			"slot", k, "survivor", sessions[idx[0]].ID, "removed", len(idx)-1)
	}

	for i, s := range sessions {
		if survivorIdx[i] {
			res.Survivors = append(res.Survivors, s)
		}
	}
	return res
}

func (k slotKey) String() string {
	return fmt.Sprintf("%s/%s/%s %s-%s (%dm)", k.owner, k.course, k.date, k.start, k.end, k.duration)
}
