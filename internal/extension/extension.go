// Package extension defines the contract protocol implementations fulfil to
// execute sources and criteria, and the registry the engine uses to find the
// extension able to run a given source or criterion on a given host.
package extension

import (
	"context"
	"fmt"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// ProtocolExtension executes protocol-backed sources and criteria.
type ProtocolExtension interface {
	// Name returns the unique identifier of the extension.
	Name() string

	// IsValidConfiguration reports whether the host carries a configuration
	// this extension can work with.
	IsValidConfiguration(host *telemetry.HostConfiguration) bool

	// SupportsSource reports whether the extension executes this source variant.
	SupportsSource(src connector.Source) bool

	// SupportsCriterion reports whether the extension evaluates this criterion variant.
	SupportsCriterion(c connector.Criterion) bool

	// ProcessSource executes the source against the host.
	ProcessSource(ctx context.Context, src connector.Source, connectorID string, tm *telemetry.Manager) (*sourcetable.Table, error)

	// ProcessCriterion evaluates the criterion against the host. Protocol
	// failures are reported in the result, never as a panic.
	ProcessCriterion(ctx context.Context, c connector.Criterion, connectorID string, tm *telemetry.Manager) CriterionTestResult
}

// CriterionTestResult is the outcome of one criterion evaluation.
type CriterionTestResult struct {
	Success bool
	Message string
	Result  *string
	Err     error
}

// Success builds a successful result.
func Success(message, result string) CriterionTestResult {
	return CriterionTestResult{Success: true, Message: message, Result: &result}
}

// Failure builds a failed result.
func Failure(message, result string) CriterionTestResult {
	return CriterionTestResult{Message: message, Result: &result}
}

// Error builds a failed result carrying the error that caused it.
func Error(c connector.Criterion, err error) CriterionTestResult {
	name := "criterion"
	if c != nil {
		name = c.TypeName()
	}
	return CriterionTestResult{
		Message: fmt.Sprintf("Error in %s test: %v", name, err),
		Err:     err,
	}
}

// ResultText returns the result or "" when absent.
func (r CriterionTestResult) ResultText() string {
	if r.Result == nil {
		return ""
	}
	return *r.Result
}
