// Package aggregate merges the results of a decomposition's runs into one reply.
package aggregate

import (
	"sort"
	"strings"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// Fixed reply texts.
const (
	NoResultsReply      = "抱歉，这次没有拿到任何结果，请稍后再试一次。"
	DoneReply           = "已完成。"
	AllFailedReply      = "抱歉，所有子任务都没有成功完成，请稍后重试。"
	sequentialNoteOpen  = "（注：部分步骤未完成："
	sequentialNoteClose = "）"
	parallelNoteLeadIn  = "以下子任务未能完成："
	unknownTaskText     = "某个子任务"
	footnoteItemSep     = "；"
	sectionSep          = "\n\n"
)

// Result is the outcome of one task.
type Result struct {
	TaskID string `json:"task_id"`
	// Status is compared case-insensitively; completed, success, and ok count as success.
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Succeeded reports whether the result counts as a success.
func (r Result) Succeeded() bool {
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case "completed", "success", "ok":
		return true
	default:
		return false
	}
}

// FromSnapshots converts run snapshots to results.
func FromSnapshots(snaps []models.RunSnapshot) []Result {
	out := make([]Result, len(snaps))
	for i, s := range snaps {
		out[i] = Result{
			TaskID: s.TaskID,
			Status: string(s.Status),
			Output: s.Output,
			Error:  s.Error,
		}
	}
	return out
}

// Aggregate merges results into a single reply.
//
// Results are put back into task order first. A lone successful task is
// returned verbatim. When tasks form a chain, the last successful output is the
// answer; otherwise successful outputs are deduplicated and joined. Failures
// are listed in a footnote.
func Aggregate(tasks []models.Task, results []Result, originalMessage string) string {
	if len(results) == 0 {
		return NoResultsReply
	}

	ordered := orderByTask(tasks, results)

	var successes, failures []Result
	for _, r := range ordered {
		if r.Succeeded() {
			successes = append(successes, r)
		} else {
			failures = append(failures, r)
		}
	}

	if len(tasks) <= 1 && len(ordered) == 1 && len(successes) == 1 {
		return orDone(strings.TrimSpace(successes[0].Output))
	}

	if len(successes) == 0 {
		return AllFailedReply
	}

	texts := taskTexts(tasks)

	if hasDependencies(tasks) {
		reply := orDone(strings.TrimSpace(successes[len(successes)-1].Output))
		if len(failures) > 0 {
			reply += sectionSep + sequentialNoteOpen + footnoteItems(failures, texts) + sequentialNoteClose
		}
		return reply
	}

	seen := make(map[string]bool, len(successes))
	var parts []string
	for _, r := range successes {
		out := strings.TrimSpace(r.Output)
		if out == "" || seen[out] {
			continue
		}
		seen[out] = true
		parts = append(parts, out)
	}
	reply := orDone(strings.Join(parts, sectionSep))
	if len(failures) > 0 {
		reply += sectionSep + parallelNoteLeadIn + footnoteItems(failures, texts)
	}
	return reply
}

// orderByTask sorts results into task order. Results for unknown tasks go last,
// keeping their relative order.
func orderByTask(tasks []models.Task, results []Result) []Result {
	pos := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, dup := pos[t.ID]; !dup {
			pos[t.ID] = i
		}
	}
	rank := func(r Result) int {
		if p, ok := pos[r.TaskID]; ok {
			return p
		}
		return len(tasks)
	}

	out := make([]Result, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}

func hasDependencies(tasks []models.Task) bool {
	for _, t := range tasks {
		if t.HasDependencies() {
			return true
		}
	}
	return false
}

func taskTexts(tasks []models.Task) map[string]string {
	m := make(map[string]string, len(tasks))
	for _, t := range tasks {
		m[t.ID] = strings.TrimSpace(t.Text)
	}
	return m
}

func footnoteItems(failures []Result, texts map[string]string) string {
	items := make([]string, len(failures))
	for i, f := range failures {
		text := texts[f.TaskID]
		if text == "" {
			text = unknownTaskText
		}
		reason := strings.TrimSpace(f.Error)
		if reason == "" {
			reason = f.Status
		}
		items[i] = text + "（" + reason + "）"
	}
	return strings.Join(items, footnoteItemSep)
}

func orDone(s string) string {
	if s == "" {
		return DoneReply
	}
	return s
}
