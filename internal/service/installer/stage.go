package installer

// Stage is a step of the install state machine.
type Stage int

// Stages in the order they are reached.
const (
	StageIdle Stage = iota
	StageProcessesStopped
	StageOldVersionsRemoved
	StageDirectoryPrepared
	StageExtracted
	StageRegistered
	StageComplete
)

var stageNames = [...]string{
	StageIdle:               "idle",
	StageProcessesStopped:   "processes_stopped",
	StageOldVersionsRemoved: "old_versions_removed",
	StageDirectoryPrepared:  "directory_prepared",
	StageExtracted:          "extracted",
	StageRegistered:         "registered",
	StageComplete:           "complete",
}

// String implements fmt.Stringer.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}

	return stageNames[s]
}
