package stores

import (
	"encoding/json"
	"fmt"

	"github.com/archspace/archspace/pkg/executor"
	"github.com/archspace/archspace/pkg/sampler"
)

// NewSampleRecord converts a finalized sample into its stored form. A sample
// with violations is recorded as rejected.
func NewSampleRecord(script string, seed uint64, sample *sampler.Sample, violations []string) (*SampleRecord, error) {
	assignments, err := json.Marshal(sample.Assignments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode assignments: %w", err)
	}

	record := &SampleRecord{
		ID:          sample.ID,
		Script:      script,
		Seed:        seed,
		Status:      SampleStatusAccepted,
		Attempts:    max(sample.Attempts, 1),
		Assignments: string(assignments),
		Duration:    sample.Duration,
	}
	if sample.Graph != nil {
		shape := sample.Shape()
		record.Modules = shape.Modules
		record.Depth = shape.Depth
		record.Graph = sample.Graph.ToDOT()
	}
	if len(violations) > 0 {
		data, err := json.Marshal(violations)
		if err != nil {
			return nil, fmt.Errorf("failed to encode violations: %w", err)
		}
		v := string(data)
		record.Violations = &v
		record.Status = SampleStatusRejected
	}
	return record, nil
}

// NewRunRecord converts an executor result into its stored form. runErr is the
// error Run returned alongside result, if any.
func NewRunRecord(sampleID string, feed map[string]any, result *executor.Result, runErr error) (*RunRecord, error) {
	inputs, err := json.Marshal(feed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inputs: %w", err)
	}

	record := &RunRecord{
		ID:        result.RunID,
		SampleID:  sampleID,
		Status:    RunStatus(result.Status),
		Inputs:    string(inputs),
		Levels:    result.Levels,
		StartedAt: result.StartedAt.UTC(),
		Duration:  result.Duration,
	}
	if result.Outputs != nil {
		data, err := json.Marshal(result.Outputs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode outputs: %w", err)
		}
		v := string(data)
		record.Outputs = &v
	}
	if runErr != nil {
		msg := runErr.Error()
		record.Error = &msg
	}
	return record, nil
}
