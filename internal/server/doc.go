// Package server implements the popchat group session and broadcast core.
//
// Groups are short-lived rooms identified by a random code. The session
// manager owns group lifecycle, membership, and message ordering; the hub
// tracks live connections and fans events out to group members; admission
// control caps request and message rates before any state mutation. All
// authoritative state is in-memory and single-process.
package server
