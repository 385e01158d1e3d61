package main

import (
	"github.com/credlens/credlens/internal/cluster"
	"github.com/credlens/credlens/internal/consensus"
	"github.com/credlens/credlens/internal/integrator"
	"github.com/credlens/credlens/internal/kv"
	"github.com/credlens/credlens/internal/pipeline"
	"github.com/credlens/credlens/internal/reputation"
	"github.com/credlens/credlens/internal/secrets"
	"github.com/credlens/credlens/internal/spam"
	"github.com/credlens/credlens/internal/store"
)

// app bundles the wired components so commands can reach past the
// pipeline when they need a single subsystem.
type app struct {
	kv         *kv.Store
	store      *store.FeedbackStore
	reputation *reputation.Tracker
	clusters   *cluster.Assigner
	pipeline   *pipeline.Engine
}

// buildApp opens storage and wires the full pipeline from the loaded
// config. Callers must Close when done.
func buildApp() (*app, error) {
	kvStore, err := kv.Open(cfg.Storage.KVPath)
	if err != nil {
		return nil, err
	}

	cipher, err := secrets.Load(kvStore, logger)
	if err != nil {
		// Free text is dropped rather than stored unencrypted; the rest
		// of the pipeline keeps working.
		logger.WithError(err).Warn("encryption unavailable, free text will not be retained")
		cipher = nil
	}

	feedbackStore, err := store.NewFeedbackStore(cfg.Storage.FeedbackDBPath, cipher, store.Options{
		StandardRetention: cfg.Retention.Standard,
		SpamRetention:     cfg.Retention.Spam,
		ClusterRetention:  cfg.Retention.Cluster,
		QuotaBytes:        cfg.Storage.QuotaBytes,
	}, logger, nil)
	if err != nil {
		kvStore.Close()
		return nil, err
	}

	assigner := cluster.NewAssigner(kvStore, logger, nil)
	feedbackStore.SetClusterPruner(assigner)

	tracker := reputation.NewTracker(kvStore, logger, nil)
	classifier := spam.NewClassifier(cfg.Spam, logger)
	consensusEngine := consensus.NewEngine(feedbackStore, cfg.Consensus, logger, nil)
	scoreIntegrator := integrator.NewIntegrator(cfg.Integrator, logger, nil, nil)

	return &app{
		kv:         kvStore,
		store:      feedbackStore,
		reputation: tracker,
		clusters:   assigner,
		pipeline: pipeline.New(
			classifier, tracker, feedbackStore, assigner, consensusEngine, scoreIntegrator, logger,
		),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.WithError(err).Warn("feedback store close failed")
	}
	if err := a.kv.Close(); err != nil {
		logger.WithError(err).Warn("kv store close failed")
	}
}
