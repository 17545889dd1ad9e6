package deployer

import "fmt"

// ConfigError reports a missing or invalid required setting. Field carries
// the exact configuration key so operators can fix the right entry.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("deployer: required setting %q is missing or empty", e.Field)
}

// ActivationError reports that the remote-store client could not be
// constructed from otherwise complete configuration.
type ActivationError struct {
	Err error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("deployer: activation failed: %v", e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// DeployError reports a failed upload, preserving the provider error for
// diagnostics. Swallowing these would hide expired credentials or bucket
// policy problems from operators.
type DeployError struct {
	ObjectKey string
	Err       error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("deployer: upload of %q failed: %v", e.ObjectKey, e.Err)
}

func (e *DeployError) Unwrap() error { return e.Err }
