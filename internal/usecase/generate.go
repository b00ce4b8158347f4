package usecase

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/dtq/internal/domain"
)

// GenerateRequest describes a synthetic load batch.
type GenerateRequest struct {
	Count              int            `json:"count" validate:"required,gte=1,lte=10000"`
	PartitionKeyPrefix string         `json:"partition_key_prefix"`
	TaskType           string         `json:"task_type"`
	PayloadTemplate    map[string]any `json:"payload_template"`
}

// GenerateResult summarizes a synthetic load batch.
type GenerateResult struct {
	Created   int      `json:"created"`
	Requested int      `json:"requested"`
	Errors    []string `json:"errors,omitempty"`
}

// GenerateJobs creates count synthetic jobs through the regular ingestion
// path. Large batches are spread over ten partition keys.
func (s *Service) GenerateJobs(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if req.Count < 1 || req.Count > 10000 {
		return GenerateResult{}, fmt.Errorf("%w: count must be in 1..10000", domain.ErrInvalidArgument)
	}
	if req.PartitionKeyPrefix == "" {
		req.PartitionKeyPrefix = "dev-partition"
	}
	if req.TaskType == "" {
		req.TaskType = "synthetic"
	}

	res := GenerateResult{Requested: req.Count}
	for i := 0; i < req.Count; i++ {
		data := make(map[string]any, len(req.PayloadTemplate)+2)
		for k, v := range req.PayloadTemplate {
			data[k] = v
		}
		data["index"] = i
		data["batch_size"] = req.Count

		partitionKey := req.PartitionKeyPrefix
		if req.Count > 10 {
			partitionKey = fmt.Sprintf("%s-%d", req.PartitionKeyPrefix, i%10)
		}

		payload := domain.JobPayload{TaskType: req.TaskType, Data: data}
		if _, err := s.Create(ctx, payload, partitionKey); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("job %d: %v", i, err))
			continue
		}
		res.Created++
	}
	return res, nil
}
