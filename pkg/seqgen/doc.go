/*
Package seqgen provides a Go interface for creating and running test generation jobs.

Jobs can most easily be created by passing in a job config to [GetJobFromConfig], but can also be created manually by populating a [Job] struct.
For a manually created job to work, at least the following fields have to be populated:
  - Budget
  - Workers or RemoteWorkers
  - SequenceLength

After a job struct was acquired, it can be run against a [sut.Registry] using [Job.Run].
The registry describes the classes the generated tests construct and invoke, one of them being the class under test.

[Job.Run] generates candidate tests with the job's [Strategy] until the budget is spent, executes them on the local and remote workers, and keeps a minimal archive of the tests which jointly reach the best coverage found.
Faults found in the classes are part of that coverage.
Once all generated tests were executed, it returns a [Report] holding the archive.

If the job has an OutputDir, progress snapshots, the archive and the report are written to it while the job runs.
The directory can be copied elsewhere with [Job.Export].
*/
package seqgen
