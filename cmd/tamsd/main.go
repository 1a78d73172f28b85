// Command tamsd runs the time-addressable media store's API server and its
// background flow-delete worker in one process.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/cmn/nlog"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/deleteworker"
	"github.com/bbc/tams-core/metastore"
	"github.com/bbc/tams-core/objstore"
	"github.com/bbc/tams-core/refengine"
	"github.com/bbc/tams-core/repos"
	"github.com/bbc/tams-core/segpipeline"
	"github.com/bbc/tams-core/server"
)

func main() {
	var configFile string
	root := &cobra.Command{
		Use:   "tamsd",
		Short: "time-addressable media store API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	root.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		nlog.Errorf("tamsd: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	cfg, err := cmn.LoadConfig(configFile)
	if err != nil {
		return err
	}
	nlog.SetLevel(cfg.LogLevel)

	ms, err := metastore.NewClickHouseStore(ctx, metastore.ClickHouseOptions{
		Endpoints: cfg.MetadataEndpoints,
		AccessKey: cfg.MetadataAccessKey,
		SecretKey: cfg.MetadataSecretKey,
		Database:  cfg.MetadataSchema,
	})
	if err != nil {
		return err
	}
	defer ms.Close()
	if err := ms.EnsureSchema(ctx); err != nil {
		return err
	}

	objStore, err := objstore.NewS3Store(ctx, objstore.S3Options{
		Bucket:      cfg.ObjectBucket,
		EndpointURL: cfg.ObjectEndpointURL,
		AccessKey:   cfg.ObjectAccessKey,
		SecretKey:   cfg.ObjectSecretKey,
		UseSSL:      cfg.ObjectUseSSL,
	})
	if err != nil {
		return err
	}
	if err := objStore.EnsureBucket(ctx); err != nil {
		return err
	}

	sourceRepo := repos.NewSourceRepo(ms)
	flowRepo := repos.NewFlowRepo(ms)
	objectRepo := repos.NewObjectRepo(ms)
	segRepo := repos.NewSegmentRepo(ms)
	colRepo := repos.NewCollectionRepo(ms)
	backendRepo := repos.NewStorageBackendRepo(ms)
	reqRepo := repos.NewFlowDeleteRequestRepo(ms)

	backend := &core.StorageBackend{
		ID:             cfg.DefaultStorageBackendID,
		Label:          "default",
		Provider:       "s3",
		Bucket:         cfg.ObjectBucket,
		EndpointURL:    cfg.ObjectEndpointURL,
		UseSSL:         cfg.ObjectUseSSL,
		StoreType:      "http_object_store",
		DefaultStorage: true,
		Created:        time.Now(),
	}
	if _, terr := backendRepo.Get(ctx, backend.ID); terr != nil {
		if terr := backendRepo.Seed(ctx, backend); terr != nil {
			return terr
		}
	}

	presignTTL := time.Duration(cfg.PresignTTLSeconds) * time.Second
	pipeline := segpipeline.New(backend, objStore, objectRepo, flowRepo, segRepo, presignTTL, cfg.TamsStoragePath)

	engine := refengine.New(sourceRepo, flowRepo, objectRepo, segRepo, colRepo)

	worker := deleteworker.New("tamsd-worker-0", reqRepo, engine, 2*time.Second)
	worker.Run(ctx)
	defer worker.Stop(context.Background())

	deps := &server.Deps{
		Sources:     sourceRepo,
		Flows:       flowRepo,
		Objects:     objectRepo,
		Segments:    segRepo,
		Collections: colRepo,
		Backends:    backendRepo,
		Requests:    reqRepo,
		Engine:      engine,
		Pipelines:   map[string]*segpipeline.Pipeline{backend.ID: pipeline},
		Worker:      worker,

		AsyncDeleteThreshold: cfg.AsyncDeleteThreshold,
	}
	router := server.NewRouter(deps)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		nlog.Infof("tamsd: listening on %s", cfg.HTTPListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
