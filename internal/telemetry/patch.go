package telemetry

// RunPatch carries the mutable subset of Run fields accepted by
// PATCH /api/v1/runs/{event_id} (§4.3). Pointer fields distinguish "field
// omitted" from "field explicitly set"; a nil field is left untouched
// (§4.3: "Null-valued fields ignored").
//
// event_id, run_id, agent_name, job_type, start_time, created_at, and the
// git_commit_* fields are not patchable here: identity/classification fields
// are immutable after creation, and git commit metadata is owned exclusively
// by the associate-commit state machine (commit.go).
type RunPatch struct {
	Status        *Status
	EndTime       *string // ISO-8601, parsed by the caller before reaching the store
	DurationMs    *int64
	ItemsDiscovered *int64
	ItemsSucceeded  *int64
	ItemsFailed     *int64
	ItemsSkipped    *int64
	InputSummary  *string
	OutputSummary *string
	SourceRef     *string
	TargetRef     *string
	ErrorSummary  *string
	ErrorDetails  *string
	GitRepo       *string
	GitBranch     *string
	GitRunTag     *string
	MetricsJSON   *string
	ContextJSON   *string
}

// FieldsUpdated returns the wire field names of every non-nil field, in a
// stable order, for the `fields_updated` response array (§4.3).
func (p *RunPatch) FieldsUpdated() []string {
	var fields []string

	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}

	add(p.Status != nil, "status")
	add(p.EndTime != nil, "end_time")
	add(p.DurationMs != nil, "duration_ms")
	add(p.ItemsDiscovered != nil, "items_discovered")
	add(p.ItemsSucceeded != nil, "items_succeeded")
	add(p.ItemsFailed != nil, "items_failed")
	add(p.ItemsSkipped != nil, "items_skipped")
	add(p.InputSummary != nil, "input_summary")
	add(p.OutputSummary != nil, "output_summary")
	add(p.SourceRef != nil, "source_ref")
	add(p.TargetRef != nil, "target_ref")
	add(p.ErrorSummary != nil, "error_summary")
	add(p.ErrorDetails != nil, "error_details")
	add(p.GitRepo != nil, "git_repo")
	add(p.GitBranch != nil, "git_branch")
	add(p.GitRunTag != nil, "git_run_tag")
	add(p.MetricsJSON != nil, "metrics_json")
	add(p.ContextJSON != nil, "context_json")

	return fields
}

// IsEmpty reports whether no field was set (§4.3: "At least one non-null").
func (p *RunPatch) IsEmpty() bool {
	return len(p.FieldsUpdated()) == 0
}

// ValidatePatch validates a RunPatch's set fields: status must be canonical
// (no aliases, §4.3), counters non-negative.
func ValidatePatch(p *RunPatch) error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}

	if p.Status != nil && !p.Status.IsCanonical() {
		return ErrInvalidStatus
	}

	for _, c := range []struct {
		name  string
		value *int64
	}{
		{"duration_ms", p.DurationMs},
		{"items_discovered", p.ItemsDiscovered},
		{"items_succeeded", p.ItemsSucceeded},
		{"items_failed", p.ItemsFailed},
		{"items_skipped", p.ItemsSkipped},
	} {
		if c.value != nil {
			if err := ValidateCounter(c.name, *c.value); err != nil {
				return err
			}
		}
	}

	return nil
}
