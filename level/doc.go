// Package level holds the authoritative in-process severity state and the
// bit-packed snapshot format used to share it between processes.
package level
