// Package priority provides the business boundary for prioritizer's task
// classification. It defines the Classifier (blank-input policy, label-to-tier
// mapping, engine dispatch), the Engine contract consumed from a zero-shot
// classification backend, and the domain models returned to callers.
package priority
