// Package planner turns work items into study sessions and places them on a
// time grid.
//
// Everything here is a pure function of its arguments: callers pass the
// clock, settings, energy profile and busy time explicitly, and identical
// input always yields an identical Result. Safe for concurrent use.
package planner
