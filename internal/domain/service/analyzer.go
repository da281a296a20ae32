package service

import (
	"FXEngine/internal/domain/models"
	"FXEngine/internal/domain/repository"
)

// SignalAnalyzer turns a bar series into at most one signal. Implementations
// are pure: identical input yields an identical result.
type SignalAnalyzer interface {
	Name() string
	Timeframes() repository.Roles
	Analyze(pair string, bars models.BarSeries) (models.Signal, bool)
}

// StructureReporter exposes the intermediate market structure view and the
// market structure signal on its own.
type StructureReporter interface {
	Report(bars models.BarSeries) (models.StructureReport, bool)
	Analyze(pair string, bars models.BarSeries) (models.Signal, bool)
}
