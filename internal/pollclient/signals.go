package pollclient

type Signal string

const (
	SignalTextExtracted     Signal = "text_extracted"
	SignalSuggestionsReady  Signal = "suggestions_ready"
	SignalSuggestionsFailed Signal = "suggestions_failed"
	SignalJobFailed         Signal = "job_failed"
)

// Transitions returns the notifications earned by moving from prev to next. prev is nil
// before the first response. Repeating an observed state yields nothing, so each signal
// fires at most once per job.
func Transitions(prev *JobView, next JobView) []Signal {
	var before JobView
	if prev != nil {
		before = *prev
	}

	var out []Signal
	if before.Result == nil && next.Result != nil {
		out = append(out, SignalTextExtracted)
	}
	prevSuggestions, nextSuggestions := suggestionsStatus(before), suggestionsStatus(next)
	if prevSuggestions != nextSuggestions {
		switch nextSuggestions {
		case SuggestionsDone:
			out = append(out, SignalSuggestionsReady)
		case SuggestionsFailed:
			out = append(out, SignalSuggestionsFailed)
		}
	}
	if before.Status != StatusError && next.Status == StatusError {
		out = append(out, SignalJobFailed)
	}
	return out
}

// Progress maps a view to a coarse completion percentage.
func Progress(v JobView) int {
	switch {
	case v.Settled():
		return 100
	case v.Result != nil:
		return 70
	case v.Status == StatusProcessing:
		return 30
	default:
		return 10
	}
}

func suggestionsStatus(v JobView) string {
	if v.Result == nil {
		return ""
	}
	return v.Result.SuggestionsStatus
}
