// Package complaint runs the resident's submission flow: validate, check for
// similar complaints, confirm, upload, and drop the autosaved draft.
package complaint

import (
	"context"
	"fmt"

	"github.com/aduan-desa/portal-server/internal/backend"
	"github.com/aduan-desa/portal-server/internal/models"
	"go.uber.org/zap"
)

// Stage is where the flow stops before the resident submits.
type Stage string

const (
	// StageConfirm shows the final confirmation dialog.
	StageConfirm Stage = "confirm"
	// StageDuplicateWarning lists similar complaints; the resident may cancel
	// or continue.
	StageDuplicateWarning Stage = "duplicate_warning"
)

// Preparation is the outcome of Prepare.
type Preparation struct {
	Stage   Stage                     `json:"stage"`
	Similar []models.SimilarComplaint `json:"similar_complaints,omitempty"`
	// Unverified is set when the duplicate check itself failed and the flow
	// went on as if no duplicate existed.
	Unverified bool `json:"unverified,omitempty"`
}

// API is the part of backend.Client the flow uses.
type API interface {
	CheckDuplicate(ctx context.Context, bearer, title, description string) (*models.DuplicateCheck, error)
	CreateComplaint(ctx context.Context, bearer string, in models.ComplaintInput, photos []models.Photo) (*backend.Result, error)
}

// DraftClearer removes the browser's autosaved draft.
type DraftClearer interface {
	Clear(ctx context.Context) error
}

// Validator checks the input before anything is sent.
type Validator interface {
	Struct(s any) error
}

// Flow drives one submission.
type Flow struct {
	api      API
	validate Validator
	logger   *zap.SugaredLogger
}

// NewFlow creates a submission flow
func NewFlow(api API, validate Validator, logger *zap.SugaredLogger) *Flow {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Flow{api: api, validate: validate, logger: logger}
}

// Prepare validates in and decides which dialog comes next. A failed
// duplicate check never blocks the flow.
func (f *Flow) Prepare(ctx context.Context, bearer string, in models.ComplaintInput) (*Preparation, error) {
	if err := f.validate.Struct(in); err != nil {
		return nil, err
	}

	check, err := f.api.CheckDuplicate(ctx, bearer, in.Title, in.Description)
	if err != nil {
		f.logger.Warnw("Duplicate check failed, continuing to confirmation", "error", err)
		return &Preparation{Stage: StageConfirm, Unverified: true}, nil
	}
	if !check.Success {
		f.logger.Warnw("Duplicate check rejected, continuing to confirmation", "message", check.Message)
		return &Preparation{Stage: StageConfirm, Unverified: true}, nil
	}

	if check.IsDuplicate && len(check.SimilarComplaints) > 0 {
		return &Preparation{Stage: StageDuplicateWarning, Similar: check.SimilarComplaints}, nil
	}
	return &Preparation{Stage: StageConfirm}, nil
}

// Submit uploads the complaint. On success the draft is cleared; a failure
// to clear it is logged and does not fail the submission.
func (f *Flow) Submit(ctx context.Context, bearer string, in models.ComplaintInput, photos []models.Photo, draft DraftClearer) (*backend.Result, error) {
	if err := f.validate.Struct(in); err != nil {
		return nil, err
	}

	res, err := f.api.CreateComplaint(ctx, bearer, in, photos)
	if err != nil {
		return nil, fmt.Errorf("create complaint: %w", err)
	}
	if !res.Success {
		return res, nil
	}

	if draft != nil {
		if err := draft.Clear(ctx); err != nil {
			f.logger.Warnw("Complaint submitted but draft could not be cleared", "error", err)
		}
	}
	f.logger.Infow("Complaint submitted", "photos", len(photos), "priority", in.Priority)
	return res, nil
}
