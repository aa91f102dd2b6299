/*
Package types defines the core data structures shared across the router:
the node registry entries routing decisions are made against, and the
task records that track a command from submission through to a terminal
result.

# Core Types

Node describes a machine the router can dispatch work to: its aliases,
hostname, fallback address, platform tags, capability and specialty
sets, and concurrency limit.

Task represents one unit of work: the command or script to run, its
hard requirements (os/arch/capabilities), and its lifecycle status.

# State Machine

Tasks move through a linear lifecycle:

	pending -> assigned -> running -> completed
	                               -> failed
	                               -> timeout
	                               -> cancelled

The running state is optional: the task router moves a task from assigned
straight to its terminal status.

Once a task reaches a terminal status (TaskStatus.Terminal()) its
record no longer changes.
*/
package types
