// Package rewind implements a reversible command bus. It couples a single
// ordered job queue, a bounded undo/redo history with checkpoints, nested
// transactional groups, and an asynchronous event hub into a library that
// can be embedded into editors, game loops, or automation agents.
//
// Typical usage looks like:
//   - Create a Bus with configuration
//   - Define Commands that capture everything needed to apply and revert
//   - Execute Commands, optionally inside BeginGroup/EndGroup
//   - Undo and Redo against the recorded History
//   - Register Listeners to observe what happened, or Export the History
//     through an Archiver
//
// The examples/ directory contains a runnable editor session that exercises
// the API in a small domain.
package rewind
