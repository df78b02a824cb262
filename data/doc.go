/*
Package data contains the common data structures used throughout slogd.

[Severity] and [Channel] describe a log filter, [Registry] is the static module
catalog, and [LevelMsg] is the fixed-size envelope exchanged with level tooling
over the message queue.
*/
package data
