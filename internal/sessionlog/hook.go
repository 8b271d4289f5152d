package sessionlog

// TrimHook is an optional callback invoked after each committed trim batch
// with the time range it deleted.
type TrimHook interface {
	TrimmedRange(session string, first, last float64, count int)
}

type noopTrimHook struct{}

func (noopTrimHook) TrimmedRange(string, float64, float64, int) {}
