// Package scheduler holds the pluggable scheduling policies that turn a
// task's review history into its next due time.
//
// A policy is a pure function from (prior state or nil, one action log) to
// the next State. Policies never perform I/O and never mutate the prior
// state, so folding a policy over a task's ordered history always yields the
// same State. State records the name of the policy that produced it;
// Dispatcher uses that tag to keep applying the same policy to a task even
// after the default changes.
//
// Policy parameters can be overridden from a CUE file, see LoadPolicies.
package scheduler
