package phase

import (
	"harvester/internal/output"
	"harvester/internal/task"
)

// dirRawWriter adapts output.WriteRaw to worker.RawWriter for one stage's
// raw-JSON directory.
type dirRawWriter struct {
	dir string
}

func (w dirRawWriter) WriteRaw(t task.Task, jsonText string) error {
	return output.WriteRaw(w.dir, t, jsonText)
}
