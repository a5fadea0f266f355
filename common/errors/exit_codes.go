package errors

type ExitCode int

const (
	// Server startup
	ConfigFailureExitCode ExitCode = 70
	LogInitFailureExitCode         = 71
	DBLoadFailureExitCode          = 80
	ListenFailureExitCode          = 90

	// Server shutdown
	DBSaveFailureExitCode = 100

	// Statement execution
	CouldNotExecExitCode = 127
	TimedOutExitCode     = 124
)
