// Package processing holds the transformation steps applied to player
// tables and the Composer that chains them.
//
// A step is any Processor: column and row filters, imputers, derived
// features and log transforms. Steps never mutate their input. A Composer
// runs steps in order, records one span per step and stops at the first
// failure with a *StepError naming the step.
//
// Pipelines can also be declared in YAML and resolved through a Registry,
// which maps step kinds to factories. Packages that contribute their own
// steps, such as league specific cleaners, register them on the same
// Registry.
package processing
