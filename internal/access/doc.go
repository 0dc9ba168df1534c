// Package access manages user-granted course folders.
//
// A Reference is a persisted, revocable pointer to a folder the user chose.
// It never implies validity: the Broker upgrades a Reference into a live
// Handle by checking read permission, requesting it when the state is merely
// promptable, and probing the folder for liveness. When verification fails,
// or no reference exists, the Broker falls back to an interactive Prompter.
//
// Cancellation, permission denial, and missing folders are ordinary outcomes
// here. AcquireAccess and ForceNew report them as a nil Grant, never as errors.
package access
