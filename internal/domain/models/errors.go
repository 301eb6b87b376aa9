package models

import "errors"

var (
	// ErrNoData is returned when a price history is empty.
	ErrNoData = errors.New("no data")
	// ErrDataInsufficient is returned when too few usable rows remain at any stage.
	ErrDataInsufficient = errors.New("insufficient data")
	// ErrNumericDegenerate is returned when sanitization empties a matrix or a fit
	// cannot proceed on the given numbers.
	ErrNumericDegenerate = errors.New("no valid rows")
	// ErrNoValidRow is returned when the latest feature row does not survive sanitization.
	ErrNoValidRow = errors.New("no valid row")
	// ErrNotTrained is returned by operations that need a fitted model.
	ErrNotTrained = errors.New("model not trained")
	// ErrTrainingInProgress is returned when another training run holds the symbol.
	ErrTrainingInProgress = errors.New("training already in progress")
	// ErrArtifactNotFound is returned by model stores when no artifact exists for a key.
	ErrArtifactNotFound = errors.New("model artifact not found")
)
