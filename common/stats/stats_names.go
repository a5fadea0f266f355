package stats

/*
This file defines all the metrics being collected. As new metrics are added please follow this pattern.
*/

const (
	/************************* Listener metrics **************************/
	/*
		number of requests received, scoped by action
	*/
	ListenerRequestCounter = "requests"

	/*
		number of requests that produced an error response, scoped by action
	*/
	ListenerErrorCounter = "errors"

	/*
		time spent handling a synchronous request, scoped by action
	*/
	ListenerRequestLatency_ms = "requestLatency_ms"

	/*
		number of listeners currently dispatching a request
	*/
	ListenerBusyGauge = "busyListeners"

	/*
		number of recovered handler panics
	*/
	ListenerPanicCounter = "handlerPanics"

	/************************* Job metrics **************************/
	/*
		number of run requests that created a job record
	*/
	JobsStartedCounter = "jobsStarted"

	/*
		number of jobs whose pipeline has relayed the all-done sentinel
	*/
	JobsFinishedCounter = "jobsFinished"

	/*
		number of jobs currently executing
	*/
	JobsRunningGauge = "jobsRunning"

	/*
		number of statements started / finished / finished with non-zero return code
	*/
	StatementsStartedCounter  = "statementsStarted"
	StatementsFinishedCounter = "statementsFinished"
	StatementsFailedCounter   = "statementsFailed"

	/************************* Persistence metrics **************************/
	/*
		number of successful / failed database snapshots
	*/
	SnapshotSavedCounter  = "snapshotsSaved"
	SnapshotFailedCounter = "snapshotsFailed"

	/*
		time taken to write a database snapshot
	*/
	SnapshotLatency_ms = "snapshotLatency_ms"

	/************************* Container metrics **************************/
	/*
		number of container status queries / queries that failed after retries
	*/
	ContainerQueryCounter       = "containerQueries"
	ContainerQueryFailedCounter = "containerQueryFailures"

	/*
		number of container services torn down
	*/
	ContainerTeardownCounter = "containerTeardowns"

	/************************* Server metrics **************************/
	/*
		server uptime in milliseconds
	*/
	ServerUptime_ms = "uptime_ms"
)
