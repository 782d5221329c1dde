// Package crawler implements the incremental last-played crawler: the page
// walking engine with its stop conditions and checkpoints, the mode selector
// that plans init, update and resume runs, and the retry and pause helpers
// used between fetches.
package crawler
