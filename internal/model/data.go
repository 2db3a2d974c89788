package model

import "time"

// TrainingHistory records the loss after every epoch
type TrainingHistory struct {
	Loss    []float64 `json:"loss"`
	ValLoss []float64 `json:"val_loss,omitempty"`
}

// Final returns the last training and validation loss
func (h TrainingHistory) Final() (loss, valLoss float64) {
	if n := len(h.Loss); n > 0 {
		loss = h.Loss[n-1]
	}
	if n := len(h.ValLoss); n > 0 {
		valLoss = h.ValLoss[n-1]
	}
	return loss, valLoss
}

// Evaluation is the error of one trained mode on its test split
type Evaluation struct {
	Mode         string    `json:"mode"`
	Metric       string    `json:"metric"`
	Space        string    `json:"space"`
	Value        float64   `json:"value"`
	TrainSamples int       `json:"train_samples"`
	TestSamples  int       `json:"test_samples"`
	TrainLoss    float64   `json:"train_loss"`
	ValLoss      float64   `json:"val_loss"`
	CreatedAt    time.Time `json:"created_at"`
}

// Prediction is the forecast for one manifest row
type Prediction struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	VisitDate time.Time `json:"visit_date"`
	Visitors  float64   `json:"visitors"`
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // "database", "file"
	Path        string    `json:"path"` // file path or table name
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
