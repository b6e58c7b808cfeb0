// Package run orchestrates multi-step sequences over the execution
// manager.
//
// A run submits its steps through the same admission path as ad-hoc
// goals, so run steps and standalone commands interleave under the same
// per-device serialization. The failure policy decides what a failed
// step does to the rest of the run; the submission sequence recorded
// per step is the evidence of what the policy actually did.
package run
