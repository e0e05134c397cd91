package pipeline

import (
	"go.uber.org/zap"

	"orderflow-lab/internal/absorption"
	"orderflow-lab/internal/detector"
	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/profile"
)

// stages holds the per-tick components shared by the batch and live paths.
type stages struct {
	profile    *profile.RollingProfile
	detector   *detector.AnomalyDetector
	density    *detector.DensityTracker
	classifier *absorption.Classifier
}

func newStages(cfg Config, logger *zap.Logger) (*stages, error) {
	prof, err := profile.New(cfg.Profile)
	if err != nil {
		return nil, err
	}
	det, err := detector.New(cfg.Detector)
	if err != nil {
		return nil, err
	}
	cls, err := absorption.NewClassifier(cfg.Absorption, logger)
	if err != nil {
		return nil, err
	}
	return &stages{
		profile:    prof,
		detector:   det,
		density:    detector.NewDensityTracker(cfg.DensityWindow),
		classifier: cls,
	}, nil
}

// step feeds one tick through every stage in order. It returns candidates
// finalized by this tick and the anomaly the tick produced, if any.
func (s *stages) step(t *domain.Tick) ([]absorption.Outcome, *domain.AnomalyEvent, error) {
	if err := s.profile.Update(t); err != nil {
		return nil, nil, err
	}

	outcomes := s.classifier.Observe(t)

	ev, ok, err := s.detector.Observe(t)
	if err != nil {
		return nil, nil, err
	}
	if !ok || !ev.IsAnomaly {
		return outcomes, nil, nil
	}

	s.density.Record(ev)
	bid, ask := s.density.Counts(ev.TimestampMs)
	s.classifier.Add(ev, absorption.Density{Bid: bid, Ask: ask})
	return outcomes, &ev, nil
}
