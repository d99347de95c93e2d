// Package handlers implements the engine's built-in job handlers, ported
// from job_engine's app/workers/handlers package (email, AI task, data
// cleaning demo handlers) into domain.Handler functions. They exist so a
// freshly started worker has something to execute and exercise the retry
// path against; real deployments register their own handlers against the
// same HandlerRegistry.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/massanaroger/flux-jobs/internal/domain"
)

// Register wires every built-in handler into r under its job_type, the
// single source of truth both cmd/worker (to execute them) and
// cmd/apiserver (to validate submissions against known types before they
// reach the queue) register against.
func Register(r *domain.HandlerRegistry) {
	_ = r.Register("email", Email)
	_ = r.Register("ai_task", AITask)
	_ = r.Register("data_cleaning", DataCleaning)
}

// emailPayload mirrors email_handler.handle_email's expected fields.
type emailPayload struct {
	To              string `json:"to"`
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	SimulateFailure bool   `json:"simulate_failure"`
}

// Email sends a message via the job type "email".
func Email(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p emailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid email payload: %w", err)
	}
	if p.To == "" {
		p.To = "unknown@example.com"
	}
	if p.Subject == "" {
		p.Subject = "No Subject"
	}

	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.SimulateFailure {
		return nil, fmt.Errorf("smtp connection refused (simulated)")
	}

	return json.Marshal(map[string]any{
		"status":     "sent",
		"to":         p.To,
		"subject":    p.Subject,
		"message_id": fmt.Sprintf("msg-%d", time.Now().UnixNano()),
		"characters": len(p.Body),
	})
}

// aiTaskPayload mirrors ai_handler.handle_ai_task's expected fields.
type aiTaskPayload struct {
	Task            string `json:"task"`
	Input           string `json:"input"`
	SimulateFailure bool   `json:"simulate_failure"`
}

// AITask simulates an inference call under the job type "ai_task".
func AITask(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p aiTaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid ai_task payload: %w", err)
	}
	if p.Task == "" {
		p.Task = "classification"
	}

	processing := time.Duration(300+len(p.Input))*time.Millisecond
	if processing > 5*time.Second {
		processing = 5 * time.Second
	}
	select {
	case <-time.After(processing):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.SimulateFailure {
		return nil, fmt.Errorf("model inference timeout (simulated)")
	}

	var result map[string]any
	switch p.Task {
	case "summarization":
		summary := p.Input
		if len(summary) > 100 {
			summary = summary[:100] + "..."
		}
		result = map[string]any{"summary": summary, "compression_ratio": 0.3}
	default:
		labels := []string{"positive", "negative", "neutral"}
		result = map[string]any{
			"label":      labels[rand.Intn(len(labels))],
			"confidence": 0.7 + rand.Float64()*0.29,
		}
	}

	return json.Marshal(map[string]any{
		"task_type":          p.Task,
		"processing_time_sec": processing.Seconds(),
		"result":             result,
	})
}

// dataCleaningPayload mirrors data_cleaning_handler.handle_data_cleaning's
// expected fields.
type dataCleaningPayload struct {
	Source          string   `json:"source"`
	RowCount        int      `json:"row_count"`
	Operations      []string `json:"operations"`
	SimulateFailure bool     `json:"simulate_failure"`
}

// DataCleaning simulates an ETL pass under the job type "data_cleaning".
func DataCleaning(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p dataCleaningPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid data_cleaning payload: %w", err)
	}
	if p.Source == "" {
		p.Source = "unknown"
	}
	if p.RowCount == 0 {
		p.RowCount = 1000
	}
	if len(p.Operations) == 0 {
		p.Operations = []string{"dedup", "normalize", "validate"}
	}

	wait := time.Duration(200+p.RowCount/10) * time.Millisecond
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.SimulateFailure {
		return nil, fmt.Errorf("data source connection lost (simulated)")
	}

	cleaned := int(float64(p.RowCount) * (0.85 + rand.Float64()*0.14))
	return json.Marshal(map[string]any{
		"source":             p.Source,
		"original_rows":      p.RowCount,
		"cleaned_rows":       cleaned,
		"removed_rows":       p.RowCount - cleaned,
		"operations_applied": p.Operations,
		"quality_score":      0.90 + rand.Float64()*0.10,
	})
}
