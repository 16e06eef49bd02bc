package main

import (
	"log"

	"grain-classification/devices"
	"grain-classification/spectral"

	socketio "github.com/googollee/go-socket.io"
)

// socketController pushes live analysis results to connected dashboards and
// accepts analyze requests over the socket channel.
type socketController struct {
	server   *socketio.Server
	pipeline *spectral.Pipeline
	registry *devices.Registry
}

func newSocketController(server *socketio.Server, pipeline *spectral.Pipeline, registry *devices.Registry) *socketController {
	return &socketController{server: server, pipeline: pipeline, registry: registry}
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	model := c.pipeline.Model()
	_, pcaComponents := model.PCA.Dimensions()
	socket.Emit("modelInfo", map[string]interface{}{
		"especies":        model.Species.Classes,
		"bandas":          spectral.ReducedBandNames(),
		"indices":         spectral.IndexNames(),
		"pca_componentes": pcaComponents,
	})
}

func (c *socketController) handleAnalyze(socket socketio.Conn, deviceID string) {
	if deviceID == "" || deviceID == "auto" {
		id, ok := c.registry.MostRecentActive()
		if !ok {
			socket.Emit("analysisError", map[string]string{"message": "no active device"})
			return
		}
		deviceID = id
	}
	c.registry.QueueCommand(deviceID, "analyze")
	socket.Emit("commandQueued", map[string]string{"device_id": deviceID})
}

// broadcastAnalysis fans a finished classification out to every connected
// dashboard.
func (c *socketController) broadcastAnalysis(result *spectral.ClassificationResult) {
	c.server.BroadcastToNamespace("/", "analysis", result)
}

func (c *socketController) register() {
	c.server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("dashboard connected: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		c.emitModelInfo(socket)
		return nil
	})

	c.server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		c.emitModelInfo(socket)
	})

	c.server.OnEvent("/", "analyze", func(socket socketio.Conn, deviceID string) {
		c.handleAnalyze(socket, deviceID)
	})

	c.server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("socket error:", e)
	})

	c.server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("dashboard disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})
}
