package service

import (
	"context"
	"log"
)

// Host bridge actions. Each is a one-way notification to the native
// driving/location layer; the bridge's acknowledgement is never awaited.
const (
	BridgeTripAccepted       = "trip_accepted"
	BridgeStatusChanged      = "status_changed"
	BridgeRouteTrackingStart = "route_tracking_start"
	BridgeRouteTrackingStop  = "route_tracking_stop"
	BridgeRouteTrackingPause = "route_tracking_pause"
	BridgeTripCompleted      = "trip_completed"
	BridgeTripCancelled      = "trip_cancelled"
)

// HostBridge is the narrow capability used to notify the host mobile
// runtime. Calls are fire-and-forget: a bridge failure never blocks or
// fails the operation that triggered it.
type HostBridge interface {
	Notify(ctx context.Context, action string, payload map[string]any) error
}

// LogBridge is the default bridge: it just logs the notification.
type LogBridge struct{}

// Notify logs the action and payload.
func (LogBridge) Notify(ctx context.Context, action string, payload map[string]any) error {
	log.Printf("[BRIDGE] action=%s payload=%v", action, payload)
	return nil
}

var _ HostBridge = LogBridge{}
