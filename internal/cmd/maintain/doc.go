// Package maintain runs the periodic background passes of a seglog node:
// sealing idle segments, applying retention and verifying segment integrity.
// Every pass works stream by stream, outside the writer lock, and resumes from
// checkpoints after an interruption.
package maintain
