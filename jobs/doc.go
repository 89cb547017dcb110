// Package jobs runs webhook delivery from a job queue. A Scheduler enqueues
// drain jobs on an interval and a Runner executes them against a publisher.
package jobs
