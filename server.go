package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"grain-classification/analyses"
	"grain-classification/db"
	"grain-classification/devices"
	"grain-classification/spectral"
	"grain-classification/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
)

func serve(port string) {
	allowOriginFunc := func(r *http.Request) bool {
		return true
	}

	calibrationPath := utils.GetEnv("CALIBRATION_PATH", "config/calibration.json")
	modelPath := utils.GetEnv("MODEL_PATH", "config/model.json")

	calibration, err := spectral.LoadCalibrationReference(calibrationPath)
	if err != nil {
		log.Fatalf("failed to load calibration reference: %v", err)
	}
	if degenerate := calibration.DegenerateBands(); len(degenerate) > 0 {
		log.Printf("WARNING: %d calibration bands are degenerate (white <= dark): %v", len(degenerate), degenerate)
		log.Println("Those bands will always read zero reflectance.")
	}

	model, err := spectral.LoadModelBundle(modelPath)
	if err != nil {
		log.Fatalf("failed to load model bundle: %v", err)
	}
	log.Printf("Loaded model: %d species, %d-component PCA", len(model.Species.Classes), len(model.PCA.Components))

	pipeline := spectral.NewPipeline(calibration, model)
	registry := devices.NewRegistry()

	var store db.Client
	if strings.EqualFold(utils.GetEnv("PERSIST_ANALYSES", "true"), "true") {
		store, err = db.NewClient()
		if err != nil {
			log.Printf("WARNING: analysis persistence disabled: %v", err)
		} else {
			defer store.Close()
		}
	}
	history := analyses.NewHistory(store)
	history.Restore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.CleanupLoop(ctx)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	controller := newSocketController(server, pipeline, registry)
	controller.register()

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/esp32/poll", newPollHandler(registry))
	mux.HandleFunc("/esp32/result", newResultHandler(pipeline, history, controller.broadcastAnalysis))
	mux.HandleFunc("/command/analyze", newAnalyzeCommandHandler(registry))
	mux.HandleFunc("/devices", newDevicesHandler(registry))
	mux.HandleFunc("/last_analysis", newLastAnalysisHandler(history))
	mux.HandleFunc("/history", newHistoryHandler(history))
	mux.HandleFunc("/export", newExportHandler(history))
	mux.HandleFunc("/status", newStatusHandler(pipeline, registry, store))
	mux.HandleFunc("/config", newConfigHandler(pipeline))
	mux.HandleFunc("/admin/reload", newReloadHandler(pipeline, calibrationPath, modelPath))
	mux.Handle("/", http.FileServer(http.Dir("static")))

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
